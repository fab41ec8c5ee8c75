package core

import "cloudlab/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// The lifecycle manager raises typed errors before these rules run; the
// engine is the backstop that keeps any future mutation path honest.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LifecycleTransitionRule())
	engine.Register(ReferentialIntegrityRule())
	return engine
}
