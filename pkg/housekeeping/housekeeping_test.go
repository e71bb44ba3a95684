// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package housekeeping

import "testing"

func TestPerformIsLastInFirstOut(t *testing.T) {
	var l List
	var order []string
	l.Add("first", func(bool) { order = append(order, "first") })
	l.Add("second", func(bool) { order = append(order, "second") })
	l.AddFirst("zeroth", func(bool) { order = append(order, "zeroth") })

	l.Perform(true)

	want := []string{"second", "first", "zeroth"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
	if len(l.tasks) != 0 {
		t.Fatalf("expected tasks drained after Perform")
	}
}

func TestRemove(t *testing.T) {
	var l List
	l.Add("keep", func(bool) {})
	l.Add("drop", func(bool) {})
	l.Remove("drop")
	if len(l.tasks) != 1 || l.tasks[0].name != "keep" {
		t.Fatalf("expected only 'keep' task to remain, got %+v", l.tasks)
	}
}

func TestPerformPassesSuccessFlag(t *testing.T) {
	var l List
	var got bool
	l.Add("check", func(success bool) { got = success })
	l.Perform(false)
	if got {
		t.Fatalf("expected success=false to propagate to task")
	}
}
