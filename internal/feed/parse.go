// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package feed

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/tomtom215/tribewatch/internal/models"
)

// ParseConquerFeed parses whitespace separated rows of
// "village_id,unix_timestamp,new_owner,old_owner[,...]". Rows with fewer than
// four fields or non-integer values are skipped and counted as malformed.
// Rows older than since are dropped without counting.
func ParseConquerFeed(body []byte, since int64) ([]models.FeedEntry, int) {
	var (
		entries   []models.FeedEntry
		malformed int
	)
	for _, row := range bytes.Fields(body) {
		fields := strings.Split(string(row), ",")
		if len(fields) < 4 {
			malformed++
			continue
		}

		values, ok := parseInts(fields[:4])
		if !ok {
			malformed++
			continue
		}
		entry := models.FeedEntry{
			VillageID:  values[0],
			Timestamp:  values[1],
			NewOwnerID: values[2],
			OldOwnerID: values[3],
		}
		if entry.Timestamp < since {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, malformed
}

// ParseKillScores parses "rank,player_id,kills" lines.
func ParseKillScores(body []byte) ([]models.KillScore, int) {
	var (
		scores    []models.KillScore
		malformed int
	)
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		fields := strings.Split(string(line), ",")
		if len(fields) != 3 {
			malformed++
			continue
		}
		values, ok := parseInts(fields)
		if !ok {
			malformed++
			continue
		}
		scores = append(scores, models.KillScore{
			Rank:     int(values[0]),
			PlayerID: values[1],
			Kills:    values[2],
		})
	}
	return scores, malformed
}

func parseInts(fields []string) ([]int64, bool) {
	out := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
