// SPDX-License-Identifier: Apache-2.0

package domain

import "reflect"

// Diff computes the partial-update changes map between two field
// snapshots: every key whose value in after differs from before, plus
// keys only present in after. Keys removed in after are reported with
// a nil value so consumers can distinguish "cleared" from "unchanged".
func Diff(before, after map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newValue := range after {
		oldValue, existed := before[key]
		if !existed || !reflect.DeepEqual(oldValue, newValue) {
			changes[key] = newValue
		}
	}

	for key := range before {
		if _, kept := after[key]; !kept {
			changes[key] = nil
		}
	}

	return changes
}
