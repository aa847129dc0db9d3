// feed-loader generates a steady stream of synthetic threat events and
// submits them to a running threatwatch instance. Useful for demos and for
// exercising the live feed without real sensor input.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"threatwatch/internal/threat"
)

var (
	threatTypes = []string{"Malware", "DDoS", "Phishing", "Ransomware", "Port Scan", "Data Exfiltration"}
	severities  = []threat.Severity{threat.SeverityLow, threat.SeverityMedium, threat.SeverityHigh, threat.SeverityCritical}
	sources     = []string{"ids-eu-1", "ids-us-2", "honeypot-3", "edr-fleet", "mail-gateway"}
)

func randomThreat(rng *rand.Rand) threat.Threat {
	t := threat.Threat{
		Type:       threatTypes[rng.Intn(len(threatTypes))],
		Severity:   severities[rng.Intn(len(severities))],
		Source:     sources[rng.Intn(len(sources))],
		Confidence: 0.3 + rng.Float64()*0.7,
		Indicators: map[string]any{},
	}
	for i := 0; i < rng.Intn(4); i++ {
		t.Indicators[fmt.Sprintf("ip_%d", i)] = fmt.Sprintf("10.%d.%d.%d", rng.Intn(255), rng.Intn(255), rng.Intn(255))
	}
	return t
}

func submit(ctx context.Context, client *http.Client, addr string, t threat.Threat) error {
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/api/threats", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "threatwatch base URL")
	every := flag.Int("every", 5, "seconds between generated threats")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %ds", *every), func() {
		t := randomThreat(rng)
		if err := submit(ctx, client, *addr, t); err != nil {
			slog.Error("submit failed", "err", err)
			return
		}
		slog.Info("submitted", "type", t.Type, "severity", t.Severity)
	}); err != nil {
		slog.Error("schedule", "err", err)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
}
