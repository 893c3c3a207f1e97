package simplet

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// shortIDLength is how much of the identity appears in resource names.
const shortIDLength = 12

// Container roles within a stack.
const (
	RoleDatabase = "mysql"
	RoleApp      = "app"
)

// StackName generates the resource prefix for one stack instance.
// Pattern: simplet_{kind}_{identity[:12]}_{instance}
//
// The instance suffix keeps two physical stacks with the same identity from
// colliding on engine resource names.
//
// Example:
//
//	StackName(KindEmailAirdrop, "3af1c0ffee99aa", "7b2e") // returns "simplet_email_airdrop_3af1c0ffee99_7b2e"
func StackName(kind Kind, id, instance string) string {
	if len(id) > shortIDLength {
		id = id[:shortIDLength]
	}
	return fmt.Sprintf("simplet_%s_%s_%s", kind, id, instance)
}

// ContainerName generates a container name for a role in a stack.
// Pattern: {stack}_{role}
func ContainerName(stack, role string) string {
	return fmt.Sprintf("%s_%s", stack, role)
}

// NetworkName generates the bridge network name of a stack.
// Pattern: {stack}_net
func NetworkName(stack string) string {
	return fmt.Sprintf("%s_net", stack)
}

// VolumeName generates a named volume for a stack.
// Pattern: {stack}_{volume}
func VolumeName(stack, volume string) string {
	return fmt.Sprintf("%s_%s", stack, volume)
}
