// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Command pactier-monitor is the runtime monitor (C10): a long-running
// loop started once a boot reaches a terminal Tier-2 or Tier-3 state,
// which periodically re-evaluates promotion and degradation and forces a
// reboot on any committed tier change. Exactly one instance runs per
// device; it is the sole journal writer for the lifetime of the boot.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ironveil/pactier/pkg/attest"
	"github.com/ironveil/pactier/pkg/bootctl"
	"github.com/ironveil/pactier/pkg/housekeeping"
	"github.com/ironveil/pactier/pkg/journal"
	"github.com/ironveil/pactier/pkg/log"
	"github.com/ironveil/pactier/pkg/monitor"
	"github.com/ironveil/pactier/pkg/monitor/statussrv"
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
	tickPeriod := flag.Duration("tick", monitor.DefaultTickPeriod, "interval between evaluation ticks")
	statusAddr := flag.String("status-addr", "127.0.0.1:7777", "address for the read-only status server; empty disables it")
	simulate := flag.Bool("simulate-reboot", false, "don't actually reboot on a tier change; keep looping instead (for test harnesses)")
	flag.Parse()

	log.SetPrefix("pactier-monitor-")
	log.AddConsoleLog(0)
	log.FlushMemLog()
	log.SetFatalAction(log.FailAction{
		MsgPfx: "monitor fatal: ",
		Terminator: func() {
			// Nothing inside a monitor tick may reach Fatalf; this
			// path exists only for an unrecoverable startup failure.
			os.Exit(2)
		},
	})

	cfg := monitorConfig(*journalPath, *healthPath, *tier2Root, *tier3Root, *verifierURL, *iface, *attestCmd, *auditDB)
	cfg.HealthMaxAge = *healthMaxAge

	var requester reboot.Requester = reboot.Unix{}
	if *simulate {
		requester = &reboot.Simulated{}
	}

	m := monitor.New(cfg, requester)
	if *tickPeriod > 0 {
		m.SetTickPeriod(*tickPeriod)
	}

	if *statusAddr != "" {
		srv, err := statussrv.Listen(*statusAddr, m)
		if err != nil {
			log.Logf("monitor: status server unavailable on %s: %v", *statusAddr, err)
		} else {
			housekeeping.Preboots.Add("close status server", func(bool) { srv.Close() })
			go func() {
				if err := srv.Serve(); err != nil {
					log.Logf("monitor: status server exited: %v", err)
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := m.Run(ctx); err != nil {
		log.Fatalf("monitor run failed: %v", err)
	}
}

func monitorConfig(journalPath, healthPath, tier2Root, tier3Root, verifierURL, iface, attestCmd, auditDB string) bootctl.Config {
	cfg := bootctl.Config{
		JournalPath:           journalPath,
		HealthPath:            healthPath,
		Tier2RootPath:         tier2Root,
		Tier3RootPath:         tier3Root,
		VerifierURL:           verifierURL,
		NetworkIface:          iface,
		NetworkStabilityWindow: 60 * time.Second,
		Thresholds:            policy.DefaultThresholds(),
	}
	if attestCmd != "" {
		a, err := attest.ParseCmd(attestCmd)
		if err != nil {
			log.Fatalf("%v", err)
		} else {
			cfg.Attest = a
		}
	}
	if auditDB != "" {
		at, err := journal.OpenAuditTrail(auditDB)
		if err != nil {
			log.Logf("monitor: audit trail unavailable: %v", err)
		} else {
			cfg.Audit = at
			housekeeping.Preboots.Add("close audit trail", func(bool) { at.Close() })
		}
	}
	return cfg
}
