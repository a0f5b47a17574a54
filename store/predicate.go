// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package store

import (
	"math/big"

	"github.com/athanor-intermediary/swapd/common/types"
)

// Value is the sum type over SwapRecord field types a Predicate can compare
// against. Exactly one field is set. This replaces the duck-typed ".eq vs
// ===" comparison spec.md §9 flags as a redesign target with a typed tree:
// equality is resolved by the field's concrete Go type, never reflection.
type Value struct {
	hash      *types.Hash
	bigInt    *big.Int
	str       *string
	direction *types.Direction
	u64       *uint64
}

// HashValue wraps a types.Hash for use in a predicate.
func HashValue(h types.Hash) Value { return Value{hash: &h} }

// BigIntValue wraps a *big.Int for use in a predicate; equality uses
// (*big.Int).Cmp, not pointer or struct identity.
func BigIntValue(i *big.Int) Value { return Value{bigInt: i} }

// StringValue wraps a string for use in a predicate.
func StringValue(s string) Value { return Value{str: &s} }

// DirectionValue wraps a types.Direction for use in a predicate.
func DirectionValue(d types.Direction) Value { return Value{direction: &d} }

// Uint64Value wraps a uint64 for use in a predicate.
func Uint64Value(u uint64) Value { return Value{u64: &u} }

func (v Value) equal(field func(*types.SwapRecord) Value, r *types.SwapRecord) bool {
	other := field(r)
	switch {
	case v.hash != nil && other.hash != nil:
		return *v.hash == *other.hash
	case v.bigInt != nil && other.bigInt != nil:
		return v.bigInt.Cmp(other.bigInt) == 0
	case v.str != nil && other.str != nil:
		return *v.str == *other.str
	case v.direction != nil && other.direction != nil:
		return *v.direction == *other.direction
	case v.u64 != nil && other.u64 != nil:
		return *v.u64 == *other.u64
	default:
		return false
	}
}

// FieldFunc extracts a comparable Value from a SwapRecord for use in a
// Predicate. Common fields are pre-built below (FieldPaymentHash, etc.).
type FieldFunc func(*types.SwapRecord) Value

// Predicate is one conjunct of a query: a field equals a value, or a field's
// value is a member of a set.
type Predicate interface {
	match(r *types.SwapRecord) bool
}

type eqPredicate struct {
	field FieldFunc
	value Value
}

func (p eqPredicate) match(r *types.SwapRecord) bool {
	return p.value.equal(p.field, r)
}

// Eq builds a Predicate requiring field(record) == value.
func Eq(field FieldFunc, value Value) Predicate {
	return eqPredicate{field: field, value: value}
}

type inPredicate struct {
	field  FieldFunc
	values []Value
}

func (p inPredicate) match(r *types.SwapRecord) bool {
	for _, v := range p.values {
		if v.equal(p.field, r) {
			return true
		}
	}
	return false
}

// In builds a Predicate requiring field(record) to equal one of values.
func In(field FieldFunc, values ...Value) Predicate {
	return inPredicate{field: field, values: values}
}

// Pre-built field accessors for the most commonly queried SwapRecord fields.
var (
	FieldPaymentHash FieldFunc = func(r *types.SwapRecord) Value { return HashValue(r.PaymentHash) }
	FieldDirection   FieldFunc = func(r *types.SwapRecord) Value { return DirectionValue(r.Direction) }
	FieldState       FieldFunc = func(r *types.SwapRecord) Value { return Uint64Value(uint64(r.State)) }
	FieldChainID     FieldFunc = func(r *types.SwapRecord) Value { return Uint64Value(uint64(r.ChainID)) }
	FieldOfferer     FieldFunc = func(r *types.SwapRecord) Value { return StringValue(r.Terms.Offerer) }
	FieldClaimer     FieldFunc = func(r *types.SwapRecord) Value { return StringValue(r.Terms.Claimer) }
)

// matchAll is the conjunction of all given predicates (an empty predicate
// list always matches).
func matchAll(r *types.SwapRecord, predicates []Predicate) bool {
	for _, p := range predicates {
		if !p.match(r) {
			return false
		}
	}
	return true
}
