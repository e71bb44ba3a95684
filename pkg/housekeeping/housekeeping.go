// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package housekeeping holds lists of tasks to run before a reboot. Like
// defer, it is last-in first-out: the most recently added task runs
// first, so cleanup ordering mirrors setup ordering.
package housekeeping

// Fn is a task run as part of a Preboot sequence. success carries whether
// the boot/monitor pass that triggered the reboot committed a decision
// cleanly; most tasks ignore it.
type Fn func(success bool)

type task struct {
	name string
	fn   Fn
}

// List is a last-in-first-out sequence of named tasks.
type List struct {
	tasks []task
}

// Add appends a task to the end of the list.
func (l *List) Add(name string, fn Fn) {
	l.tasks = append(l.tasks, task{name: name, fn: fn})
}

// AddFirst prepends a task, so it runs last during Perform.
func (l *List) AddFirst(name string, fn Fn) {
	l.tasks = append([]task{{name: name, fn: fn}}, l.tasks...)
}

// Remove drops every task with the given name.
func (l *List) Remove(name string) {
	var kept []task
	for _, t := range l.tasks {
		if t.name != name {
			kept = append(kept, t)
		}
	}
	l.tasks = kept
}

// Perform runs every task, last-added first, removing each as it runs.
func (l *List) Perform(success bool) {
	for len(l.tasks) > 0 {
		last := len(l.tasks) - 1
		l.tasks[last].fn(success)
		l.tasks = l.tasks[:last]
	}
}

// Clear discards every pending task without running it.
func (l *List) Clear() { l.tasks = nil }

// Preboots is the default list consulted by pkg/reboot before a real or
// simulated reboot; the commands register audit-trail and status-server
// close tasks on it.
var Preboots List
