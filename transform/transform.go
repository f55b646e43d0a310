// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package transform rewrites identifier fields of message trees. Message types
// opt in by implementing Node; the walker only descends into values handed to
// it through Visitor.VisitNode, so foreign types are never entered.
package transform

import (
	"fmt"

	"go.uber.org/zap"
)

// RefKind is the declared type of an identifier field, e.g. "LineRef".
type RefKind string

// Node is a structural element of the message family.
type Node interface {
	// Accept reports every identifier field with VisitRef and every child
	// node (including each element of child sequences) with VisitNode.
	// A nil receiver must be a no-op.
	Accept(v Visitor)
}

type Visitor interface {
	// VisitRef is called with a pointer to the field's content. A nil pointer
	// is an absent field.
	VisitRef(kind RefKind, value *string)
	VisitNode(n Node)
}

// ValueAdapter rewrites every field of the Target kind. Rewrite must be free
// of side effects.
type ValueAdapter struct {
	Name    string
	Target  RefKind
	Rewrite func(string) (string, error)
}

// Transformer applies ordered adapter lists to message trees.
type Transformer struct {
	logger *zap.Logger
}

func NewTransformer(logger *zap.Logger) *Transformer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{logger: logger}
}

// Transform mutates root in place and returns it. Each adapter makes a full
// pass over the tree before the next one starts. Failures are logged and
// confined to the field or node where they happened.
func (t *Transformer) Transform(root Node, adapters []ValueAdapter) Node {
	for _, a := range adapters {
		if a.Rewrite == nil {
			continue
		}
		w := walker{adapter: a, logger: t.logger}
		w.VisitNode(root)
		if w.failures > 0 {
			t.logger.Warn("transform finished with failures",
				zap.String("adapter", a.Name),
				zap.String("target", string(a.Target)),
				zap.Int("failures", w.failures),
			)
		}
	}
	return root
}

type walker struct {
	adapter  ValueAdapter
	logger   *zap.Logger
	failures int
}

func (w *walker) VisitRef(kind RefKind, value *string) {
	if value == nil || kind != w.adapter.Target {
		return
	}
	defer w.contain(string(kind))
	rewritten, err := w.adapter.Rewrite(*value)
	if err != nil {
		w.failures++
		w.logger.Debug("rewrite rejected value",
			zap.String("adapter", w.adapter.Name),
			zap.String("kind", string(kind)),
			zap.String("value", *value),
			zap.Error(err),
		)
		return
	}
	*value = rewritten
}

func (w *walker) VisitNode(n Node) {
	if n == nil {
		return
	}
	defer w.contain(fmt.Sprintf("%T", n))
	n.Accept(w)
}

func (w *walker) contain(at string) {
	r := recover()
	if r == nil {
		return
	}
	w.failures++
	w.logger.Error("transform of subtree failed",
		zap.String("adapter", w.adapter.Name),
		zap.String("at", at),
		zap.Any("panic", r),
	)
}
