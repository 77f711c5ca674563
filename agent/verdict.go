package agent

import (
	"fmt"
	"strings"
)

// Verdict is the accept/refine decision drawn from a critique.
type Verdict int

const (
	VerdictRefine Verdict = iota
	VerdictAccept
)

func (v Verdict) String() string {
	if v == VerdictAccept {
		return "accept"
	}
	return "refine"
}

// VerdictClassifier turns raw critique text into a Verdict.
type VerdictClassifier func(critique string) Verdict

const acceptPrefix = "NONE"

// ClassifyVerdict accepts only when the critique's first four bytes are
// exactly "NONE". Everything else, including empty or malformed critiques,
// is sent to refinement.
func ClassifyVerdict(critique string) Verdict {
	if len(critique) >= len(acceptPrefix) && critique[:len(acceptPrefix)] == acceptPrefix {
		return VerdictAccept
	}
	return VerdictRefine
}

// ClassifyVerdictLenient also accepts "none!", leading whitespace and
// markdown or quote decoration around the sentinel.
func ClassifyVerdictLenient(critique string) Verdict {
	trimmed := strings.TrimLeft(strings.TrimSpace(critique), "\"'*`“ ")
	if strings.HasPrefix(strings.ToUpper(trimmed), acceptPrefix) {
		return VerdictAccept
	}
	return VerdictRefine
}

// IsAcceptVerdict reports whether the default classifier accepts critique.
func IsAcceptVerdict(critique string) bool {
	return ClassifyVerdict(critique) == VerdictAccept
}

// ClassifierFor maps the CRITIQUE_MATCH setting to a classifier.
func ClassifierFor(mode string) (VerdictClassifier, error) {
	switch strings.ToLower(mode) {
	case "", "strict":
		return ClassifyVerdict, nil
	case "lenient":
		return ClassifyVerdictLenient, nil
	default:
		return nil, fmt.Errorf("unknown critique match mode %q", mode)
	}
}
