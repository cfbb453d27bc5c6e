// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package abtest sizes and simulates retention experiments.
//
// # Power Analysis
//
// Sample sizes come from the two-proportion z-test with unpooled variance:
//
//	n = ceil((z_{1-α/2} + z_{power})² · (p1(1-p1) + p2(1-p2)) / (p2-p1)²)
//
// where p2 = min(1, p1 + mde). A non-positive effect has no finite sample
// size; SampleSize is then InfiniteSampleSize and Infinite is set.
//
// # Retention Simulation
//
// A treatment applied at the target week lifts retention by delta there,
// and the lift fades as delta·e^(-decay·(week-target)) afterwards. The LTV
// impact compares projected LTV of the control and treatment curves.
package abtest
