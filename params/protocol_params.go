package params

const (
	LegacyDecimalPlaces int32 = 3  // Decimal places before the DecimalPlaces20 fork.
	DecimalPlaces       int32 = 20 // Decimal places after the DecimalPlaces20 fork.

	MinExponent int32 = -100000 // Smallest exponent a sandboxed decimal may reach.
	MaxExponent int32 = 100000  // Largest exponent a sandboxed decimal may reach.

	MinContractNameLength = 3  // Shortest deployable contract name.
	MaxContractNameLength = 50 // Longest deployable contract name.

	MinAccountNameLength = 3  // Shortest account name.
	MaxAccountNameLength = 16 // Longest account name, dots included.

	DefaultFindLimit = 1000 // Rows returned by find when no limit is given.
	MaxFindLimit     = 1000 // Hard cap on rows returned by find.

	// InitAction is the privileged action run exactly once per deployment.
	InitAction = "createSSC"

	// NullAccount is the sentinel owner and neutral sender used by the engine.
	NullAccount = "null"

	// DeployContract/DeployAction address the deployment pipeline.
	DeployContract = "contract"
	DeployAction   = "deploy"
)

var (
	// ReservedContractNames can never be deployed.
	ReservedContractNames = []string{DeployContract, "blockProduction", NullAccount}

	// ReservedActions can never be triggered by a transaction or a nested call.
	ReservedActions = []string{InitAction}

	// PropagatedPayloadFields are copied from the originating payload into
	// the payload of every nested contract call.
	PropagatedPayloadFields = []string{"isSignedWithActiveKey", "recipient"}
)

// IsReservedContractName reports whether name is in ReservedContractNames.
func IsReservedContractName(name string) bool {
	for _, n := range ReservedContractNames {
		if n == name {
			return true
		}
	}
	return false
}

// IsReservedAction reports whether action is in ReservedActions.
func IsReservedAction(action string) bool {
	for _, a := range ReservedActions {
		if a == action {
			return true
		}
	}
	return false
}
