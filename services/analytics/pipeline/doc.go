// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs the full analysis over validated event rows.
//
// # Description
//
// The Analyzer chains the engines: cohort grouping and retention first,
// churn scoring on the resulting cohort assignment, then LTV prediction
// and the statistical tests side by side, and finally the executive
// summary. Each stage is traced with OpenTelemetry and timed in
// Prometheus.
//
// The Worker moves that computation off the caller. Submit returns a
// channel that yields exactly one Response. A bounded number of analyses
// run at once; further submissions wait in a bounded queue and are
// rejected once it is full. An analysis that has started is never
// interrupted.
//
// Jobs layers asynchronous job tracking on top of the Worker: IDs,
// status transitions, persistence of finished jobs and status fan-out to
// subscribers.
//
// # Thread Safety
//
// Analyzer, Worker and Jobs are safe for concurrent use. The engines
// they call hold no shared state.
package pipeline
