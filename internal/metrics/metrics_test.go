package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/vncsmyrnk/pollstream/internal/core/domain"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("%w: question is required", domain.ErrValidation), "validation"},
		{fmt.Errorf("%w: 5", domain.ErrInvalidOption), "invalid_option"},
		{domain.ErrPollNotFound, "not_found"},
		{fmt.Errorf("failed to insert poll: %w", domain.ErrStoreUnavailable), "store_unavailable"},
		{errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestRecordMutation(t *testing.T) {
	before := testutil.ToFloat64(MutationsTotal.WithLabelValues("like", "not_found"))

	RecordMutation("like", domain.ErrPollNotFound)

	assert.Equal(t, before+1, testutil.ToFloat64(MutationsTotal.WithLabelValues("like", "not_found")))
}
