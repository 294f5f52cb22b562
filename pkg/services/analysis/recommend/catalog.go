package recommend

import (
	"fmt"

	"github.com/costlens/costlens/pkg/models/domain"
)

func serviceIsCompute(service string) bool {
	switch service {
	case "EC2", "RDS", "Compute Engine", "Virtual Machines":
		return true
	}
	return false
}

func serviceIsStorage(service string) bool {
	switch service {
	case "S3", "EBS", "Cloud Storage", "Storage", "Persistent Disk", "Managed Disk":
		return true
	}
	return false
}

// InstanceDownsize maps common instance types one size down per provider.
// Resize steps name the target shape; unknown types map to themselves.
var instanceDownsize = map[domain.Provider]map[string]string{
	domain.ProviderAWS: {
		"t3.large":   "t3.medium",
		"m5.xlarge":  "m5.large",
		"c5.2xlarge": "c5.xlarge",
	},
	domain.ProviderGCP: {
		"n1-standard-2": "n1-standard-1",
		"n1-standard-4": "n1-standard-2",
		"n2-standard-2": "e2-standard-2",
	},
	domain.ProviderAzure: {
		"Standard_D2s_v3": "Standard_B2s",
		"Standard_D4s_v3": "Standard_D2s_v3",
		"Standard_F4s":    "Standard_F2s",
	},
}

// Cost records carry no machine shape, so resize steps assume the most
// common type per provider until a resource inventory feed exists.
func defaultInstanceType(p domain.Provider) string {
	switch p {
	case domain.ProviderGCP:
		return "n1-standard-2"
	case domain.ProviderAzure:
		return "Standard_D2s_v3"
	default:
		return "t3.large"
	}
}

func defaultStorageTier(p domain.Provider) string {
	switch p {
	case domain.ProviderGCP:
		return "Standard"
	case domain.ProviderAzure:
		return "Premium SSD"
	default:
		return "gp2"
	}
}

// DownsizeTarget returns the suggested smaller instance type, or the input
// when no mapping is known.
func DownsizeTarget(p domain.Provider, instanceType string) string {
	if target, ok := instanceDownsize[p][instanceType]; ok {
		return target
	}
	return instanceType
}

// StorageTierTarget returns the cheaper storage tier for a known tier, or
// the input when no mapping is known.
func StorageTierTarget(p domain.Provider, tier string) string {
	targets := map[domain.Provider]map[string]string{
		domain.ProviderAWS:   {"gp2": "gp3", "io1": "gp3", "standard": "sc1"},
		domain.ProviderGCP:   {"Standard": "Nearline", "SSD": "Standard"},
		domain.ProviderAzure: {"Premium SSD": "Standard SSD", "Standard SSD": "Standard HDD"},
	}
	if target, ok := targets[p][tier]; ok {
		return target
	}
	return tier
}

func implementationSteps(cat domain.RecommendationCategory, p domain.Provider, service string) []string {
	switch cat {
	case domain.CategoryRightsizing:
		if serviceIsStorage(service) {
			current := defaultStorageTier(p)
			target := StorageTierTarget(p, current)
			return []string{
				"Create a snapshot of the volume",
				fmt.Sprintf("Create a new volume on the %s tier instead of %s from the snapshot", target, current),
				"Detach the old volume and attach the new one",
			}
		}
		current := defaultInstanceType(p)
		target := DownsizeTarget(p, current)
		return []string{
			"Stop the instance during a low-traffic window",
			fmt.Sprintf("Change the instance type from %s to %s", current, target),
			"Start the instance and verify workload health",
		}
	case domain.CategoryIdleRemoval:
		steps := []string{
			"Verify the resource is not needed",
			"Create a final snapshot if data retention is required",
		}
		switch p {
		case domain.ProviderAWS:
			return append(steps, "Delete the resource via the AWS console or CLI")
		case domain.ProviderGCP:
			return append(steps, "Delete the resource via the GCP console or gcloud")
		case domain.ProviderAzure:
			return append(steps, "Delete the resource via the Azure portal or CLI")
		default:
			return append(steps, "Delete the resource via the provider console")
		}
	case domain.CategoryOther:
		return []string{
			"Review the anomaly evidence and recent provisioning changes",
			"Confirm the spend change is expected or remediate",
		}
	}
	return nil
}
