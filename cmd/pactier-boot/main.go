// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Command pactier-boot is the boot controller (C9): it runs a single
// pass of the tier ladder against the journal and, on a committed tier
// change, hands off to pkg/reboot so the next boot re-enters at the new
// tier. Invoked once per boot, from the initramfs, before switch-root.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ironveil/pactier/pkg/attest"
	"github.com/ironveil/pactier/pkg/bootctl"
	"github.com/ironveil/pactier/pkg/housekeeping"
	"github.com/ironveil/pactier/pkg/journal"
	"github.com/ironveil/pactier/pkg/log"
	"github.com/ironveil/pactier/pkg/policy"
	"github.com/ironveil/pactier/pkg/reboot"
)

func main() {
	journalPath := flag.String("journal", "/var/pactier/boot.journal", "path to the boot journal file")
	healthPath := flag.String("health", "/var/pactier/health.json", "path to the health report")
	tier2Root := flag.String("tier2-root", "/var/pactier/roots/tier2.img", "path whose presence indicates the Tier-2 root image is available")
	tier3Root := flag.String("tier3-root", "/var/pactier/roots/tier3.img", "path whose presence indicates the Tier-3 root image is available")
	verifierURL := flag.String("verifier-url", "http://127.0.0.1:8443/verify", "URL probed for verifier reachability")
	iface := flag.String("iface", "eth0", "network interface checked for link state during T2->T3 promotion")
	attestCmd := flag.String("attest-cmd", "", "shell-style command line for the external attestation binary; empty always fails attestation")
	auditDB := flag.String("audit-db", "", "path to the bitcask decision-audit database; empty disables the audit trail")
	healthMaxAge := flag.Duration("health-max-age", 0, "reject health reports older than this; 0 disables the staleness check")
	emergencyOnExhaustion := flag.Bool("emergency-on-exhaustion", true, "enter EMERGENCY+QUARANTINE when tries_t2 reaches 0")
	simulate := flag.Bool("simulate-reboot", false, "don't actually reboot; print what would happen and exit 0 (for test harnesses)")
	flag.Parse()

	log.SetPrefix("pactier-boot-")
	log.AddConsoleLog(0)
	log.FlushMemLog()
	log.SetFatalAction(log.FailAction{
		MsgPfx: "bootctl fatal: ",
		Terminator: func() {
			// Fatal is raised only when the journal path is unreachable and
			// cannot be created - there is no safe tier to stay in.
			os.Exit(2)
		},
	})

	cfg := bootctl.Config{
		JournalPath:           *journalPath,
		HealthPath:            *healthPath,
		Tier2RootPath:         *tier2Root,
		Tier3RootPath:         *tier3Root,
		VerifierURL:           *verifierURL,
		NetworkIface:          *iface,
		NetworkStabilityWindow: 60 * time.Second,
		EmergencyOnExhaustion: *emergencyOnExhaustion,
		HealthMaxAge:          *healthMaxAge,
		Thresholds:            policy.DefaultThresholds(),
	}
	if *attestCmd != "" {
		a, err := attest.ParseCmd(*attestCmd)
		if err != nil {
			log.Fatalf("%v", err)
			return
		}
		cfg.Attest = a
	}
	if *auditDB != "" {
		at, err := journal.OpenAuditTrail(*auditDB)
		if err != nil {
			log.Logf("boot: audit trail unavailable: %v", err)
		} else {
			cfg.Audit = at
			housekeeping.Preboots.Add("close audit trail", func(bool) { at.Close() })
		}
	}

	sess := bootctl.NewSession(cfg)
	res, err := sess.Run(context.Background())
	if err != nil {
		log.Fatalf("boot controller run failed: %v", err)
		return
	}

	fmt.Printf("tier=%v state=%v reason=%s\n", res.Record.Tier, res.State, res.Entry.ReasonCode)

	var requester reboot.Requester = reboot.Unix{}
	if *simulate {
		sim := &reboot.Simulated{}
		requester = sim
		// Deferred first so it runs last, after any deferred restart below.
		defer func() {
			fmt.Printf("simulated restarts=%d poweroffs=%d last_ok=%t\n", sim.Restarts, sim.PowerOffs, sim.LastOK)
		}()
	}
	switch res.State {
	case bootctl.StateT1, bootctl.StateT2, bootctl.StateT3:
		// Terminal, stable state: nothing further to apply this boot; the
		// init system proceeds to mount the committed tier's root and,
		// once up, starts pactier-monitor.
	case bootctl.StateEmergency:
		defer requester.Restart(false)
	}
}
