/* SPDX-License-Identifier: LGPL-2.1-or-later */

/*
 * Filter driver, ported from the match/print/confirm loop in main.cpp. The
 * C++ reference locates a field's value by stripping a single leading
 * non-printable byte from the payload and retrying; this port instead locates
 * the '=' separator and walks backwards to the longest printable KEY (§9
 * point 2), which is robust to values that themselves contain '=' or
 * non-printable bytes. The key is the run of [A-Z0-9_] bytes just before
 * the first '='.
 */
package journal

import "strings"

// containsFold reports whether s case-insensitively equals any element of
// list, per SPEC_FULL.md §4.5's requirement that both field-name and
// field-value matching be case-insensitive (mirroring the equalFold already
// used for Field de-dup).
func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// splitFieldValue splits a "KEY=VALUE" Data payload into its key and value.
// It locates the first '=' and walks backwards from it while the preceding
// bytes are printable ASCII and valid key characters, so that a VALUE
// containing '=' or non-printable bytes doesn't defeat the split.
func splitFieldValue(payload []byte) (key, value string, ok bool) {
	eq := -1
	for i, b := range payload {
		if b == '=' {
			eq = i
			break
		}
	}
	if eq <= 0 {
		return "", "", false
	}
	start := eq
	for start > 0 && isFieldKeyByte(payload[start-1]) {
		start--
	}
	if start == eq {
		return "", "", false
	}
	return string(payload[start:eq]), string(payload[eq+1:]), true
}

// isFieldKeyByte matches the character set journald field names are drawn
// from: uppercase letters, digits and underscore.
func isFieldKeyByte(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_'
}

// Filter applies a FilterSpec to a parsed journal and returns the retained
// entries plus the Data/Field objects they still reference. A requested field
// name or value that the journal does not hold is a UserError. Policy governs
// what "match" means for the purpose of retention:
//
//   - PrintAll: every entry is retained (used to implement -p/--print-all).
//   - PrintMatches: only entries matching the spec are retained, for preview.
//   - DropAll / ConfirmEach: entries matching the spec are removed (the
//     journalzap delete-and-rebuild path), ConfirmEach asking the caller's
//     ConfirmCallback for each match.
func Filter(j *ParsedJournal, spec FilterSpec, sinks ...Sink) (*FilteredJournal, error) {
	sink := resolveSink(sinks)
	sink.Debugf("filtering journal: %d entries, %d field names, %d field values, policy=%d", len(j.Entries), len(spec.FieldNames), len(spec.FieldValues), spec.Policy)

	for _, name := range spec.FieldNames {
		if err := LookupField(j, name); err != nil {
			return nil, err
		}
	}
	for _, value := range spec.FieldValues {
		if err := LookupFieldValue(j, value); err != nil {
			return nil, err
		}
	}

	fieldHashes := make(map[uint64]bool)
	for _, f := range j.Fields {
		if containsFold(spec.FieldNames, string(f.Payload)) {
			fieldHashes[f.Hash] = true
		}
	}
	valueHashes := make(map[uint64]bool)
	for _, d := range j.Data {
		_, value, ok := splitFieldValue(d.Payload)
		if ok && containsFold(spec.FieldValues, value) {
			valueHashes[d.Hash] = true
		}
	}

	matches := func(e EntryObject, hashes []uint64) bool {
		if len(spec.FieldNames) == 0 && len(spec.FieldValues) == 0 {
			return false
		}
		for _, h := range hashes {
			if fieldHashes[h] || valueHashes[h] {
				return true
			}
		}
		return false
	}

	retainedIdx := make([]int, 0, len(j.Entries))
	for i, e := range j.Entries {
		isMatch := matches(e, j.itemHashes[i])
		keep := true
		switch spec.Policy {
		case PrintAll:
			keep = true
		case PrintMatches:
			keep = isMatch
		case DropAll:
			keep = !isMatch
		case ConfirmEach:
			if !isMatch {
				keep = true
			} else if spec.ConfirmCallback != nil {
				keep = spec.ConfirmCallback(e) == Keep
			} else {
				keep = true
			}
		}
		if keep {
			retainedIdx = append(retainedIdx, i)
		}
	}

	// Walk Data/Field indices in ascending original order (not map-iteration
	// order) so Rebuild's output is deterministic run to run.
	dataUsed := make([]bool, len(j.Data))
	for _, i := range retainedIdx {
		for _, di := range j.Entries[i].DataIndexes {
			dataUsed[di] = true
		}
	}

	fieldUsed := make([]bool, len(j.Fields))
	out := &FilteredJournal{Header: j.Header}
	dataRemap := make(map[int]int, len(j.Data))
	for di := 0; di < len(j.Data); di++ {
		if !dataUsed[di] {
			continue
		}
		dataRemap[di] = len(out.Data)
		out.Data = append(out.Data, j.Data[di])
		if prefix := j.Data[di].fieldPrefix(); prefix != "" {
			for fi, f := range j.Fields {
				if f.equalFold(prefix) {
					fieldUsed[fi] = true
					break
				}
			}
		}
	}
	for fi := 0; fi < len(j.Fields); fi++ {
		if fieldUsed[fi] {
			out.Fields = append(out.Fields, j.Fields[fi])
		}
	}

	out.Entries = make([]EntryObject, 0, len(retainedIdx))
	for _, i := range retainedIdx {
		e := j.Entries[i]
		remapped := make([]int, len(e.DataIndexes))
		for k, di := range e.DataIndexes {
			remapped[k] = dataRemap[di]
		}
		e.DataIndexes = remapped
		out.Entries = append(out.Entries, e)
	}

	sink.Infof("filter retained %d/%d entries, %d data, %d fields", len(out.Entries), len(j.Entries), len(out.Data), len(out.Fields))
	return out, nil
}

// LookupField reports whether name exists as a field in the journal,
// returning a UserError otherwise; used by the CLI to validate -F before
// filtering.
func LookupField(j *ParsedJournal, name string) error {
	for _, f := range j.Fields {
		if f.equalFold(name) {
			return nil
		}
	}
	return newUserError(ErrNoSuchField, name)
}

// LookupFieldValue reports whether value exists as some Data object's VALUE
// half, returning a UserError otherwise.
func LookupFieldValue(j *ParsedJournal, value string) error {
	for _, d := range j.Data {
		if _, v, ok := splitFieldValue(d.Payload); ok && strings.EqualFold(v, value) {
			return nil
		}
	}
	return newUserError(ErrNoSuchFieldValue, value)
}
