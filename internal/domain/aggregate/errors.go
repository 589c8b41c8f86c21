package aggregate

import (
	"fmt"

	"github.com/okian/monthlyrank/internal/domain/model"
)

// ErrMonthKey is returned for month keys not in YYYY-MM form. It matches
// model.ErrValidation.
var ErrMonthKey = fmt.Errorf("%w: month key must be YYYY-MM", model.ErrValidation)
