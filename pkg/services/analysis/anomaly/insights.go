package anomaly

// Investigative hints attached to anomaly evidence so a finding is
// actionable without cross-referencing provider consoles.

var computeServices = map[string]bool{
	"EC2":              true,
	"Compute Engine":   true,
	"Virtual Machines": true,
}

var storageServices = map[string]bool{
	"S3":            true,
	"Cloud Storage": true,
	"Storage":       true,
}

func possibleCauses(service, direction string) []string {
	if direction == "decrease" {
		return []string{
			"Resources terminated or deleted",
			"Reduced usage",
			"Reserved instance or savings plan applied",
			"Price reduction",
		}
	}
	switch {
	case computeServices[service]:
		return []string{
			"New instances launched",
			"Auto-scaling event",
			"Instance type changes",
			"Spot instance price fluctuation",
		}
	case storageServices[service]:
		return []string{
			"Large data upload",
			"Increased data retrieval",
			"Cross-region data transfer",
			"Lifecycle policy changes",
		}
	default:
		return []string{
			"New resources provisioned",
			"Increased usage of existing resources",
			"Price changes",
			"End of free tier or promotional pricing",
		}
	}
}

func recommendedActions(service, direction string) []string {
	if direction == "decrease" {
		return []string{
			"Verify expected resource termination",
			"Document cost optimization measures",
		}
	}
	switch {
	case computeServices[service]:
		return []string{
			"Review recently launched instances",
			"Check auto-scaling policies",
			"Verify instance types and sizes",
		}
	case storageServices[service]:
		return []string{
			"Review data transfer patterns",
			"Implement lifecycle policies",
			"Check for unauthorized access",
		}
	default:
		return []string{
			"Review resource provisioning",
			"Check for unauthorized usage",
			"Set up tagging for cost allocation",
		}
	}
}
