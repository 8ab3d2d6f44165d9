package utils

import (
	"testing"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// AssertEquals verifies that the expected value is equal to the result.
// If they differ in any way, the test fails immediately.
func AssertEquals[T comparable](t *testing.T, expected T, result T) {
	if expected != result {
		t.Logf("%s is failed. Got '%v', expected '%v'", t.Name(), result, expected)
		t.FailNow()
	}
}

// AssertEqualsMsg is like AssertEquals, but it also prints a custom message when the test fails.
func AssertEqualsMsg[T comparable](t *testing.T, expected T, result T, msg string) {
	if expected != result {
		t.Logf("%s is failed; %s - Got '%v', expected '%v'", t.Name(), msg, result, expected)
		t.FailNow()
	}
}

// AssertSliceEquals is like AssertEquals but works for slices.
// Elements must match pairwise, in the same order.
func AssertSliceEquals[T comparable](t *testing.T, expected []T, result []T) {
	if equal := slices.Equal(expected, result); !equal {
		t.Logf("%s is failed. Got '%v', expected '%v'", t.Name(), result, expected)
		t.FailNow()
	}
}

// AssertMapEquals is like AssertEquals but works for maps. Every key-value
// pair must be present on both sides.
func AssertMapEquals[K comparable, V comparable](t *testing.T, expected map[K]V, result map[K]V) {
	if equal := maps.Equal(expected, result); !equal {
		t.Logf("%s is failed. Got '%v', expected '%v'", t.Name(), result, expected)
		t.FailNow()
	}
}

// AssertNil checks that result is nil. Useful for checking that there are no errors.
func AssertNil(t *testing.T, result interface{}) {
	if nil != result {
		t.Logf("%s is failed. Got '%v', expected nil", t.Name(), result)
		t.FailNow()
	}
}

// AssertNonNil checks that result is non-nil, when we want some result but
// are not interested in its details.
func AssertNonNil(t *testing.T, result interface{}) {
	if nil == result {
		t.Logf("%s is failed. Got '%v', expected non-nil", t.Name(), result)
		t.FailNow()
	}
}

// AssertTrue verifies that the given boolean is true, otherwise fails the test immediately.
func AssertTrue(t *testing.T, isTrue bool) {
	if !isTrue {
		t.Logf("%s is failed. Got false", t.Name())
		t.FailNow()
	}
}

// AssertTrueMsg is like AssertTrue with a custom message on failure.
func AssertTrueMsg(t *testing.T, isTrue bool, msg string) {
	if !isTrue {
		t.Logf("%s is false - %s", t.Name(), msg)
		t.FailNow()
	}
}

// AssertFalse verifies that the given boolean is false, otherwise fails the test immediately.
func AssertFalse(t *testing.T, isTrue bool) {
	if isTrue {
		t.Logf("%s is failed. Got true", t.Name())
		t.FailNow()
	}
}
