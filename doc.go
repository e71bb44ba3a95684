// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Subpackages implement a fault-tolerant, progressive attestation boot
// controller for embedded and edge devices: an atomic two-page boot
// journal, a pure policy evaluator over a three-tier ladder, and the
// runtime monitor and CLI that drive it.
//
// Two processes cooperate around one journal file:
//
//   - pactier-boot runs once per boot, before switch-root. It reads the
//     journal, evaluates whether this boot may promote toward a higher
//     tier or must fall back, commits the decision, and exits; the init
//     system mounts whichever root the committed tier names.
//
//   - pactier-monitor starts once a boot reaches a stable Tier-2 or
//     Tier-3 state and re-evaluates promotion and degradation on a
//     fixed tick. Any committed tier change it makes forces a reboot so
//     the next pactier-boot pass picks it up; exactly one instance runs
//     per device, and it is the sole journal writer for the lifetime of
//     the boot.
//
// pactierctl is an administrative CLI over the same journal, for
// inspecting or hand-editing tier, retry, and flag state outside of a
// live boot controller or monitor pass.
//
package pactier
