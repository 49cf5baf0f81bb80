package core

import "lineagecore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Lineage            = domain.Lineage
	DivisionEvent      = domain.DivisionEvent
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleView           = domain.RuleView
)

const (
	EntityLineage = domain.EntityLineage
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionDivide = domain.ActionDivide
	ActionDelete = domain.ActionDelete
)
