// Package intakestats keeps Redis-backed per-client submission volume statistics.
//
// Several API instances write concurrently; any instance can read.
//
// Redis Key Structure:
//
//	leads:stats:{client_id}                - Hash with totals and last-seen data
//	leads:hourly:{client_id}:{YYYYMMDDHH}  - Accepted submissions in that hour (expires 48h)
//	leads:ips:{client_id}:{YYYYMMDD}       - Set of unique submitter IPs for the day (expires 7d)
//	leads:instances:{client_id}            - Hash of API instance -> last seen timestamp
package intakestats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	hourlyTTL    = 48 * time.Hour
	ipsTTL       = 7 * 24 * time.Hour
	instancesTTL = 24 * time.Hour
)

// Stats is the current intake volume of one client.
type Stats struct {
	ClientID            string            `json:"clientId"`
	LastSubmissionAt    *time.Time        `json:"lastSubmissionAt,omitempty"`
	LastIP              string            `json:"lastIp,omitempty"`
	TotalSubmissions    int64             `json:"totalSubmissions"`
	Duplicates          int64             `json:"duplicates"`
	SubmissionsLastHour int64             `json:"submissionsLastHour"`
	SubmissionsLast24h  int64             `json:"submissionsLast24h"`
	UniqueIPsToday      int64             `json:"uniqueIpsToday"`
	Instances           map[string]string `json:"instances,omitempty"`
	RetrievedAt         time.Time         `json:"retrievedAt"`
}

type Client struct {
	redis      *redis.Client
	instanceID string
	now        func() time.Time
}

// NewClient wraps an existing connection. instanceID should be unique per API
// instance (hostname, pod name).
func NewClient(rdb *redis.Client, instanceID string) *Client {
	return &Client{redis: rdb, instanceID: instanceID, now: time.Now}
}

func statsKey(clientID string) string { return "leads:stats:" + clientID }

func hourlyKey(clientID string, t time.Time) string {
	return fmt.Sprintf("leads:hourly:%s:%s", clientID, t.UTC().Format("2006010215"))
}

func ipsKey(clientID string, t time.Time) string {
	return fmt.Sprintf("leads:ips:%s:%s", clientID, t.UTC().Format("20060102"))
}

func instancesKey(clientID string) string { return "leads:instances:" + clientID }

// Batch accumulates submissions of one client between flushes.
type Batch struct {
	ClientID   string
	Created    int64
	Duplicates int64
	IPs        map[string]struct{}
	LastIP     string
}

func NewBatch(clientID string) *Batch {
	return &Batch{ClientID: clientID, IPs: make(map[string]struct{})}
}

// Add counts one accepted submission.
func (b *Batch) Add(duplicate bool, ip string) {
	if duplicate {
		b.Duplicates++
	} else {
		b.Created++
	}
	if ip != "" {
		b.IPs[ip] = struct{}{}
		b.LastIP = ip
	}
}

func (b *Batch) merge(other *Batch) {
	b.Created += other.Created
	b.Duplicates += other.Duplicates
	for ip := range other.IPs {
		b.IPs[ip] = struct{}{}
	}
	if other.LastIP != "" {
		b.LastIP = other.LastIP
	}
}

// FlushBatch writes accumulated batch stats in one pipeline. Duplicates do not
// count toward the hourly volume.
func (c *Client) FlushBatch(ctx context.Context, batch *Batch) error {
	if batch.Created == 0 && batch.Duplicates == 0 {
		return nil
	}

	now := c.now()
	nowUnix := strconv.FormatInt(now.Unix(), 10)

	pipe := c.redis.Pipeline()

	key := statsKey(batch.ClientID)
	fields := map[string]any{"last_submission_at": nowUnix}
	if batch.LastIP != "" {
		fields["last_ip"] = batch.LastIP
	}
	pipe.HSet(ctx, key, fields)
	pipe.HIncrBy(ctx, key, "total_submissions", batch.Created)
	pipe.HIncrBy(ctx, key, "duplicates", batch.Duplicates)

	if batch.Created > 0 {
		hk := hourlyKey(batch.ClientID, now)
		pipe.IncrBy(ctx, hk, batch.Created)
		pipe.Expire(ctx, hk, hourlyTTL)
	}

	if len(batch.IPs) > 0 {
		ik := ipsKey(batch.ClientID, now)
		ips := make([]any, 0, len(batch.IPs))
		for ip := range batch.IPs {
			ips = append(ips, ip)
		}
		pipe.SAdd(ctx, ik, ips...)
		pipe.Expire(ctx, ik, ipsTTL)
	}

	inst := instancesKey(batch.ClientID)
	pipe.HSet(ctx, inst, c.instanceID, nowUnix)
	pipe.Expire(ctx, inst, instancesTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush intake stats: %w", err)
	}
	return nil
}

// GetStats reads the current statistics for a client. A client with no
// recorded traffic yields zero counts.
func (c *Client) GetStats(ctx context.Context, clientID string) (*Stats, error) {
	now := c.now()

	pipe := c.redis.Pipeline()
	statsCmd := pipe.HGetAll(ctx, statsKey(clientID))
	hourly := make([]*redis.StringCmd, 24)
	for i := range hourly {
		hourly[i] = pipe.Get(ctx, hourlyKey(clientID, now.Add(-time.Duration(i)*time.Hour)))
	}
	ipsCmd := pipe.SCard(ctx, ipsKey(clientID, now))
	instancesCmd := pipe.HGetAll(ctx, instancesKey(clientID))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get intake stats: %w", err)
	}

	stats := &Stats{
		ClientID:    clientID,
		RetrievedAt: now,
		Instances:   make(map[string]string),
	}

	if m, err := statsCmd.Result(); err == nil {
		if v, ok := m["last_submission_at"]; ok {
			if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
				t := time.Unix(unix, 0).UTC()
				stats.LastSubmissionAt = &t
			}
		}
		stats.LastIP = m["last_ip"]
		stats.TotalSubmissions, _ = strconv.ParseInt(m["total_submissions"], 10, 64)
		stats.Duplicates, _ = strconv.ParseInt(m["duplicates"], 10, 64)
	}

	if v, err := hourly[0].Int64(); err == nil {
		stats.SubmissionsLastHour = v
	}
	for _, cmd := range hourly {
		if v, err := cmd.Int64(); err == nil {
			stats.SubmissionsLast24h += v
		}
	}

	if v, err := ipsCmd.Result(); err == nil {
		stats.UniqueIPsToday = v
	}

	if instances, err := instancesCmd.Result(); err == nil {
		for instance, lastSeen := range instances {
			if unix, err := strconv.ParseInt(lastSeen, 10, 64); err == nil {
				stats.Instances[instance] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}

	return stats, nil
}
