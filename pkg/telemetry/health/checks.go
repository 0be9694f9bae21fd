package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

// Pinger is implemented by the clinical data tool library.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports the reachability of a store.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// LedgerCheck reports whether the run ledger can be read.
func LedgerCheck(l *ledger.Ledger) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := l.Runs(ctx, ledger.ListQuery{Limit: 1}); err != nil {
			return fmt.Errorf("ledger read failed: %w", err)
		}
		return nil
	}
}

// RulesCheck reports whether the rule registry has at least one active rule.
// Invalid rules do not fail the check; they are reported by the rules API.
func RulesCheck(source *rules.Source) CheckFunc {
	return func(ctx context.Context) error {
		if len(source.Snapshot().ActiveRules()) == 0 {
			return errors.New("no active rules loaded")
		}
		return nil
	}
}
