package idle

import "strings"

type resourceClass int

const (
	classOther resourceClass = iota
	classCompute
	classStorage
	classNetwork
)

// Service names per provider; the heuristic fallback keys off the class,
// never the provider itself.
var serviceClasses = map[string]resourceClass{
	"ec2":              classCompute,
	"compute engine":   classCompute,
	"virtual machines": classCompute,
	"rds":              classCompute,
	"s3":               classStorage,
	"cloud storage":    classStorage,
	"storage":          classStorage,
	"ebs":              classStorage,
	"persistent disk":  classStorage,
	"managed disk":     classStorage,
	"cloudfront":       classNetwork,
	"cloud cdn":        classNetwork,
	"data transfer":    classNetwork,
	"vpc":              classNetwork,
	"virtual network":  classNetwork,
}

func serviceClass(service string) resourceClass {
	return serviceClasses[strings.ToLower(service)]
}
