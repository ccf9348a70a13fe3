// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package profile

import (
	"fmt"
	"os"
	"strings"
)

type ProfileType string

// Current is the profile the process runs with, DEV unless PROFILE says otherwise.
var Current = DEV

const (
	DEV  ProfileType = "DEV"
	TEST ProfileType = "TEST"
	PROD ProfileType = "PROD"
)

// Parse resolves a profile name case-insensitively.
func Parse(name string) (ProfileType, bool) {
	switch p := ProfileType(strings.ToUpper(strings.TrimSpace(name))); p {
	case DEV, TEST, PROD:
		return p, true
	}
	return "", false
}

func InitProfile() {
	if p, ok := Parse(os.Getenv("PROFILE")); ok {
		Current = p
	}
	fmt.Printf("Current profile: %s\n", Current)
}
