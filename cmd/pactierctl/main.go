// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Command pactierctl is the administrative CLI surface (C11) over the
// boot journal: create/read it, and poke at tier, retry, and flag fields
// by hand. It is documented as unsafe to run concurrently with the
// runtime monitor - nothing here takes a lock beyond the journal's
// own double-page write discipline.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ironveil/pactier/pkg/bootctl"
	"github.com/ironveil/pactier/pkg/journal"
	"github.com/ironveil/pactier/pkg/journal/flags"
	"github.com/ironveil/pactier/pkg/log"
	"github.com/ironveil/pactier/pkg/retry"
)

const defaultJournalPath = "/var/pactier/boot.journal"
const defaultHealthPath = "/var/pactier/health.json"

func main() {
	journalPath := flag.String("journal", defaultJournalPath, "path to the boot journal file")
	healthPath := flag.String("health", defaultHealthPath, "path to the health report, for health-check-run")
	statusAddr := flag.String("addr", "", "runtime monitor status-server address, for status (e.g. 127.0.0.1:7777); empty falls back to a plain journal read")
	flag.Usage = usage
	flag.Parse()

	log.AddConsoleLog(0)
	log.FlushMemLog()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	cmd, rest := args[0], args[1:]
	code := dispatch(cmd, rest, *journalPath, *healthPath, *statusAddr)
	os.Exit(code)
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: pactierctl [-journal path] [-health path] [-addr host:port] <command> [args]

commands:
  init                  create the journal if absent; print the resulting record
  read                  pretty-print the current record
  set-tier <1|2|3>      write the tier field
  dec-tries <2|3>       saturating decrement of the named tier's retry budget
  reset-tries           restore both retry budgets to their defaults
  set-flag <name>       set a status flag (emergency, quarantine, brownout, dirty, network_gated)
  clear-flag <name>     clear a status flag
  inc-boot              increment boot_count
  status                query the monitor's status server at -addr, or fall back to read
  health-check-run      map the current health report to a 0/1/2 exit code
`)
}

// dispatch runs one subcommand and returns the process exit code: 0
// success, 1 bad arguments or a recoverable failure, 2 I/O error.
func dispatch(cmd string, args []string, journalPath, healthPath, statusAddr string) int {
	switch cmd {
	case "init":
		return withJournal(journalPath, func(h *journal.Handle) int {
			r, err := h.Read()
			if err != nil {
				fmt.Fprintf(os.Stderr, "read: %v\n", err)
				return 2
			}
			printRecord(r)
			return 0
		})
	case "read":
		return withJournal(journalPath, func(h *journal.Handle) int {
			r, err := h.Read()
			if err != nil {
				fmt.Fprintf(os.Stderr, "read: %v\n", err)
				return 2
			}
			printRecord(r)
			return 0
		})
	case "set-tier":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "set-tier requires exactly one argument: 1, 2, or 3")
			return 1
		}
		tier, ok := parseTier(args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "invalid tier %q: must be 1, 2, or 3\n", args[0])
			return 1
		}
		return withJournal(journalPath, func(h *journal.Handle) int {
			return mutate(h, func(r *journal.BootRecord) { r.Tier = tier })
		})
	case "dec-tries":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "dec-tries requires exactly one argument: 2 or 3")
			return 1
		}
		tier, ok := parseTier(args[0])
		if !ok || tier == journal.Tier1 {
			fmt.Fprintf(os.Stderr, "invalid tier %q: must be 2 or 3\n", args[0])
			return 1
		}
		return withJournal(journalPath, func(h *journal.Handle) int {
			return mutate(h, func(r *journal.BootRecord) {
				if _, err := retry.Decrement(r, tier); err != nil {
					fmt.Fprintf(os.Stderr, "dec-tries: %v\n", err)
				}
			})
		})
	case "reset-tries":
		return withJournal(journalPath, func(h *journal.Handle) int {
			return mutate(h, func(r *journal.BootRecord) { retry.Reset(r) })
		})
	case "set-flag":
		return flagCmd(journalPath, args, flags.Set)
	case "clear-flag":
		return flagCmd(journalPath, args, flags.Clear)
	case "inc-boot":
		return withJournal(journalPath, func(h *journal.Handle) int {
			return mutate(h, func(r *journal.BootRecord) {
				r.BootCount++
				if r.BootCount == 0 {
					r.BootCount--
					r.Flags = flags.Set(r.Flags, flags.Dirty)
				}
			})
		})
	case "status":
		return statusCmd(journalPath, statusAddr)
	case "health-check-run":
		code, err := bootctl.HealthCheckRun(healthPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "health-check-run: %v\n", err)
			return 2
		}
		return code
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		return 1
	}
}

func parseTier(s string) (journal.Tier, bool) {
	switch s {
	case "1":
		return journal.Tier1, true
	case "2":
		return journal.Tier2, true
	case "3":
		return journal.Tier3, true
	}
	return 0, false
}

func flagCmd(journalPath string, args []string, apply func(flags.Flag, flags.Flag) flags.Flag) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "flag commands require exactly one argument: a flag name")
		return 1
	}
	bit, ok := flags.ByName(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown flag %q\n", args[0])
		return 1
	}
	return withJournal(journalPath, func(h *journal.Handle) int {
		return mutate(h, func(r *journal.BootRecord) { r.Flags = apply(r.Flags, bit) })
	})
}

// withJournal opens (creating if needed) the journal at path, runs fn,
// and always closes the handle before returning.
func withJournal(path string, fn func(*journal.Handle) int) int {
	h, err := journal.OpenOrInit(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
		return 2
	}
	defer h.Close()
	return fn(h)
}

// mutate performs the CLI's read-modify-write cycle: read the current
// record, apply edit, write it back, and print the result.
func mutate(h *journal.Handle, edit func(*journal.BootRecord)) int {
	r, err := h.Read()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		return 2
	}
	edit(&r)
	if err := h.Write(r); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		return 2
	}
	printRecord(r)
	return 0
}

func printRecord(r journal.BootRecord) {
	fmt.Printf("version=%d tier=%v tries_t2=%d tries_t3=%d rollback_idx=%d\n",
		r.Version, r.Tier, r.TriesT2, r.TriesT3, r.RollbackIdx)
	fmt.Printf("flags=%v boot_count=%d timestamp=%d crc32=0x%08x\n",
		r.Flags, r.BootCount, r.Timestamp, r.Crc32)
}

// statusCmd queries a live runtime monitor's status socket if addr is
// set, falling back to a plain journal read.
func statusCmd(journalPath, addr string) int {
	if addr != "" {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(2 * time.Second))
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err == nil {
				fmt.Print(line)
				return 0
			}
			fmt.Fprintf(os.Stderr, "status: reading from monitor: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "status: monitor unreachable at %s, falling back to journal read: %v\n", addr, err)
		}
	}
	return withJournal(journalPath, func(h *journal.Handle) int {
		r, err := h.Read()
		if err != nil {
			fmt.Fprintf(os.Stderr, "read: %v\n", err)
			return 2
		}
		printRecord(r)
		return 0
	})
}
