// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package extensions

import "strings"

type TAssignmentDefinition struct {
	Assignee        string `xml:"assignee,attr" json:"assignee,omitempty"`
	CandidateGroups string `xml:"candidateGroups,attr" json:"candidateGroups,omitempty"`
	CandidateUsers  string `xml:"candidateUsers,attr" json:"candidateUsers,omitempty"`
}

func (ad TAssignmentDefinition) GetCandidateGroups() []string {
	return splitList(ad.CandidateGroups)
}

func (ad TAssignmentDefinition) GetCandidateUsers() []string {
	return splitList(ad.CandidateUsers)
}

func splitList(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	items := strings.Split(list, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}
