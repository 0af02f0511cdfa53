// Copyright (c) 2020–2024 The cryolab developers. All rights reserved.
// Project site: https://github.com/gotmc/cryolab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.


package cryolab

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/gotmc/cryolab.Version=...".
var Version = "0.4.0-dev"
