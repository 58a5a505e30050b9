package pipeline

import "errors"

// Run-level error taxonomy. Only ErrAssemblyFailure is fatal to a run;
// everything else is absorbed with degraded output and a ledger entry.
var (
	// ErrConfigurationMissing marks a manifest that could not be found.
	// Defaults are applied and the run continues.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrSecurityViolation marks a payload rejected or mutated by the
	// sanitization gate. The run continues with the cleaned content.
	ErrSecurityViolation = errors.New("security violation")

	// ErrAssemblyFailure marks an assembly that produced no artifact.
	// This is the one fatal stage error.
	ErrAssemblyFailure = errors.New("assembly failure")

	// ErrDiagnosticPatchFailure marks a self-heal cycle that could not
	// complete. The unpatched artifact is kept.
	ErrDiagnosticPatchFailure = errors.New("diagnostic patch failure")

	// ErrRunFailed is the terminal error of a FAILED run; the root cause
	// is wrapped alongside it.
	ErrRunFailed = errors.New("pipeline run failed")
)
