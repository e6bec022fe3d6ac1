package automation

import "github.com/weft-home/weft/internal/trait"

// Property keys of the pairing trait.
var (
	KeyPairingSource      = trait.NewPropertyKey(trait.SectionConfig, "pairing", "src", trait.TypeString)
	KeyPairingDestination = trait.NewPropertyKey(trait.SectionConfig, "pairing", "dst", trait.TypeString)
	KeyPairingPush        = trait.NewPropertyKey(trait.SectionConfig, "pairing", "push", trait.TypeBool)
	KeyPairingPull        = trait.NewPropertyKey(trait.SectionConfig, "pairing", "pull", trait.TypeBool)
	KeyPairingForward     = trait.NewPropertyKey(trait.SectionConfig, "pairing", "fwd", trait.TypeString)
	KeyPairingReverse     = trait.NewPropertyKey(trait.SectionConfig, "pairing", "rev", trait.TypeString)
	KeyPairingFires       = trait.NewPropertyKey(trait.SectionState, "pairing", "fires", trait.TypeInt)
	KeyPairingLastFire    = trait.NewPropertyKey(trait.SectionState, "pairing", "last", trait.TypeString)
	KeyPairingTrap        = trait.NewPropertyKey(trait.SectionState, "pairing", "trap", trait.TypeString)
)

// Property keys of the rule trait.
var (
	KeyRuleMatch  = trait.NewPropertyKey(trait.SectionConfig, "rule", "match", trait.TypeString)
	KeyRuleFires  = trait.NewPropertyKey(trait.SectionState, "rule", "fires", trait.TypeInt)
	KeyRuleActive = trait.NewPropertyKey(trait.SectionState, "rule", "active", trait.TypeBool)
)

// Property keys of the timer trait.
var (
	KeyTimerSchedule   = trait.NewPropertyKey(trait.SectionConfig, "timer", "sched", trait.TypeString)
	KeyTimerPredicate  = trait.NewPropertyKey(trait.SectionConfig, "timer", "pred", trait.TypeString)
	KeyTimerAutoReset  = trait.NewPropertyKey(trait.SectionConfig, "timer", "reset", trait.TypeBool)
	KeyTimerAutoDelete = trait.NewPropertyKey(trait.SectionConfig, "timer", "delete", trait.TypeBool)
	KeyTimerEnabled    = trait.NewPropertyKey(trait.SectionConfig, "timer", "enabled", trait.TypeBool)
	KeyTimerFires      = trait.NewPropertyKey(trait.SectionState, "timer", "fires", trait.TypeInt)
	KeyTimerLastFire   = trait.NewPropertyKey(trait.SectionState, "timer", "last", trait.TypeString)
)
