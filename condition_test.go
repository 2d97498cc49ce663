package sieve_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ezachrisen/sieve"
	"github.com/matryer/is"
)

type sized []int

func (s sized) Len() int { return len(s) }

func TestConditionMatch(t *testing.T) {

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var nilPtr *int

	cases := map[string]struct {
		cond sieve.Condition
		val  sieve.Value
		want bool
	}{
		"equal ints":                  {cond: sieve.Eq(18), val: sieve.ValueOf(18), want: true},
		"equal across int kinds":      {cond: sieve.Eq(int64(18)), val: sieve.ValueOf(uint8(18)), want: true},
		"int and float":               {cond: sieve.Eq(2), val: sieve.ValueOf(2.0), want: true},
		"json number":                 {cond: sieve.Gt(int64(17)), val: sieve.ValueOf(json.Number("18")), want: true},
		"json float":                  {cond: sieve.Lt(1), val: sieve.ValueOf(json.Number("0.5")), want: true},
		"large ints keep precision":   {cond: sieve.Eq(int64(1<<62 + 1)), val: sieve.ValueOf(int64(1 << 62)), want: false},
		"not equal":                   {cond: sieve.Ne("a"), val: sieve.ValueOf("b"), want: true},
		"not equal same":              {cond: sieve.Ne("a"), val: sieve.ValueOf("a"), want: false},
		"not equal incomparable":      {cond: sieve.Ne("a"), val: sieve.ValueOf(1), want: false},
		"less strings":                {cond: sieve.Lt("b"), val: sieve.ValueOf("a"), want: true},
		"less or equal":               {cond: sieve.Le(3), val: sieve.ValueOf(3), want: true},
		"greater or equal":            {cond: sieve.Ge(3.5), val: sieve.ValueOf(3), want: false},
		"json number and string":      {cond: sieve.Eq("x"), val: sieve.ValueOf(json.Number("1")), want: false},
		"times":                       {cond: sieve.Gt(now), val: sieve.ValueOf(now.Add(time.Second)), want: true},
		"time and string":             {cond: sieve.Gt(now), val: sieve.ValueOf("2025"), want: false},
		"durations":                   {cond: sieve.Le(time.Hour), val: sieve.ValueOf(time.Minute), want: true},
		"bools equal":                 {cond: sieve.Eq(true), val: sieve.ValueOf(true), want: true},
		"bools are not ordered":       {cond: sieve.Gt(false), val: sieve.ValueOf(true), want: false},
		"in":                          {cond: sieve.OneOf("a", "b"), val: sieve.ValueOf("b"), want: true},
		"not in":                      {cond: sieve.OneOf("a", "b"), val: sieve.ValueOf("c"), want: false},
		"comparison on absent":        {cond: sieve.Eq(1), val: sieve.Value{}, want: false},
		"not equal on absent":         {cond: sieve.Ne(1), val: sieve.Value{}, want: false},
		"comparison on nil":           {cond: sieve.Eq(1), val: sieve.ValueOf(nil), want: false},
		"null on absent":              {cond: sieve.Null(), val: sieve.Value{}, want: true},
		"null on nil":                 {cond: sieve.Null(), val: sieve.ValueOf(nil), want: true},
		"null on nil pointer":         {cond: sieve.Null(), val: sieve.ValueOf(nilPtr), want: true},
		"null on value":               {cond: sieve.Null(), val: sieve.ValueOf(0), want: false},
		"not null on value":           {cond: sieve.NotNull(), val: sieve.ValueOf(""), want: true},
		"not null on absent":          {cond: sieve.NotNull(), val: sieve.Value{}, want: false},
		"empty on absent":             {cond: sieve.Empty(), val: sieve.Value{}, want: true},
		"empty string":                {cond: sieve.Empty(), val: sieve.ValueOf(""), want: true},
		"empty slice":                 {cond: sieve.Empty(), val: sieve.ValueOf([]string{}), want: true},
		"empty map":                   {cond: sieve.Empty(), val: sieve.ValueOf(map[string]int{}), want: true},
		"empty with Len":              {cond: sieve.Empty(), val: sieve.ValueOf(sized{}), want: true},
		"number is never empty":       {cond: sieve.Empty(), val: sieve.ValueOf(0), want: false},
		"not empty string":            {cond: sieve.NotEmpty(), val: sieve.ValueOf("x"), want: true},
		"not empty on absent":         {cond: sieve.NotEmpty(), val: sieve.Value{}, want: false},
		"not empty on non-empty list": {cond: sieve.NotEmpty(), val: sieve.ValueOf(sized{1}), want: true},
	}

	for k, c := range cases {
		t.Run(k, func(t *testing.T) {
			if got := c.cond.Match(c.val); got != c.want {
				t.Errorf("%s on %+v: wanted %t, got %t", c.cond, c.val, c.want, got)
			}
		})
	}
}

func TestConditionValidate(t *testing.T) {

	cases := map[string]struct {
		cond    sieve.Condition
		wantErr bool
	}{
		"comparison":              {cond: sieve.Eq(1)},
		"comparison without":      {cond: sieve.Condition{Op: sieve.Less}, wantErr: true},
		"comparison with list":    {cond: sieve.Condition{Op: sieve.Equal, Operand: 1, Operands: []any{2}}, wantErr: true},
		"in":                      {cond: sieve.OneOf(1, 2)},
		"in without operands":     {cond: sieve.OneOf(), wantErr: true},
		"in with single operand":  {cond: sieve.Condition{Op: sieve.In, Operand: 1}, wantErr: true},
		"null":                    {cond: sieve.Null()},
		"null with operand":       {cond: sieve.Condition{Op: sieve.IsNull, Operand: 1}, wantErr: true},
		"unknown operator":        {cond: sieve.Condition{Op: sieve.Op(99)}, wantErr: true},
		"not empty":               {cond: sieve.NotEmpty()},
		"not empty with operands": {cond: sieve.Condition{Op: sieve.IsNotEmpty, Operands: []any{1}}, wantErr: true},
	}

	for k, c := range cases {
		t.Run(k, func(t *testing.T) {
			is := is.New(t)
			err := c.cond.Validate()
			if !c.wantErr {
				is.NoErr(err)
				return
			}
			is.True(errors.Is(err, sieve.ErrInvalidCondition))
		})
	}
}

func TestConditionString(t *testing.T) {
	is := is.New(t)
	is.Equal(sieve.Ge(18).String(), ">= 18")
	is.Equal(sieve.Eq("US").String(), `= "US"`)
	is.Equal(sieve.OneOf("a", 1).String(), `in ("a", 1)`)
	is.Equal(sieve.Null().String(), "is null")
	is.Equal(sieve.NewPredicate(sieve.NotEmpty(), "address", "city").String(), "address.city is not empty")
	is.True(sieve.Less.RequiresComparable())
	is.True(!sieve.IsEmpty.RequiresComparable())
}
