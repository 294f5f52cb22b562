package main

import (
	"fmt"
	"os"

	"github.com/costlens/costlens/pkg/collectors"
	"github.com/costlens/costlens/pkg/collectors/aws"
	"github.com/costlens/costlens/pkg/collectors/azure"
	"github.com/costlens/costlens/pkg/collectors/gcp"
	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/terminal"
)

func main() {
	registry := collectors.NewRegistry()
	_ = registry.Register(domain.ProviderAWS, aws.CollectorFactory)
	_ = registry.Register(domain.ProviderGCP, gcp.CollectorFactory)
	_ = registry.Register(domain.ProviderAzure, azure.CollectorFactory)

	cli := terminal.NewCLI(terminal.Options{
		Registry: registry,
		Output:   os.Stdout,
	})

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
