package main

import (
	"log/slog"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sghaida/strictdi/di"
	"github.com/sghaida/strictdi/examples"
)

// demoTransactions stands in for the payment store a real deployment would
// query.
func demoTransactions() *examples.MemTxRepo {
	return examples.NewMemTxRepo(
		&examples.Transaction{ID: "tx-1", AmountCents: 12_00, Country: "DE"},
		&examples.Transaction{ID: "tx-2", AmountCents: 990_00, Country: "XX"},
		&examples.Transaction{ID: "tx-3", AmountCents: 75_00, Country: "US"},
	)
}

// cachedChecker memoizes risk scores per transaction ID for the configured
// TTL, so repeated evaluations of the same transaction skip the rules.
type cachedChecker struct {
	inner examples.FraudChecker
	cache *gocache.Cache
}

func (c cachedChecker) CheckRisk(tx *examples.Transaction) (examples.RiskScore, error) {
	if v, ok := c.cache.Get(tx.ID); ok {
		if score, ok := v.(examples.RiskScore); ok {
			return score, nil
		}
	}
	score, err := c.inner.CheckRisk(tx)
	if err != nil {
		return 0, err
	}
	c.cache.SetDefault(tx.ID, score)
	return score, nil
}

// buildContainer wires the whole pipeline:
//
//   - the rule collection, built from config
//   - a singleton composite checker on top of the collection, decorated
//     with the score cache
//   - a per-scope decision store, bound under both its concrete and its
//     interface type
//   - the transient decision service tying it together
func buildContainer(cfg Config, logger *slog.Logger) (*di.Container, error) {
	c := di.New(di.WithLogger(logger))

	if err := di.RegisterInstance[examples.TransactionGetter](c, demoTransactions()); err != nil {
		return nil, err
	}

	if err := di.RegisterCollection(c,
		di.ElemInstance[examples.FraudChecker](examples.AmountRule{LimitCents: cfg.AmountLimitCents}),
		di.ElemInstance[examples.FraudChecker](examples.CountryRule{Blocked: cfg.BlockedCountry}),
	); err != nil {
		return nil, err
	}
	if err := di.Register(c, di.Singleton, func(s *di.Scope) (examples.FraudChecker, error) {
		rules, err := di.ResolveCollection[examples.FraudChecker](s)
		if err != nil {
			return nil, err
		}
		all, err := rules.Slice()
		if err != nil {
			return nil, err
		}
		return examples.RuleSet{Rules: all}, nil
	}); err != nil {
		return nil, err
	}

	scoreCache := gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	if err := di.RegisterDecorator(c, func(_ *di.Scope, inner examples.FraudChecker) (examples.FraudChecker, error) {
		return cachedChecker{inner: inner, cache: scoreCache}, nil
	}); err != nil {
		return nil, err
	}

	storeReg, err := di.NewRegistration(c, di.Scoped, func(*di.Scope) (*examples.MemDecisionStore, error) {
		return &examples.MemDecisionStore{}, nil
	})
	if err != nil {
		return nil, err
	}
	if err := di.Bind[*examples.MemDecisionStore](c, storeReg); err != nil {
		return nil, err
	}
	if err := di.Bind[examples.DecisionStore](c, storeReg); err != nil {
		return nil, err
	}

	if err := di.Register(c, di.Transient, func(s *di.Scope) (*examples.DecisionService, error) {
		tx, err := di.Resolve[examples.TransactionGetter](s)
		if err != nil {
			return nil, err
		}
		checker, err := di.Resolve[examples.FraudChecker](s)
		if err != nil {
			return nil, err
		}
		store, err := di.Resolve[examples.DecisionStore](s)
		if err != nil {
			return nil, err
		}
		return &examples.DecisionService{Tx: tx, Checker: checker, Store: store}, nil
	}); err != nil {
		return nil, err
	}

	return c, nil
}
