package validation

import "github.com/taskcore/taskcore/internal/coreerr"

var errRuleMutationDisabled = coreerr.New(coreerr.KindValidation, "rule mutation is disabled for this pipeline")
