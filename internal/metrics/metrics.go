package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the API and the extraction pipeline.
// In-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)
	llmExtracts    = make(map[llmKey]int64)

	scrapeAttempts = make(map[scrapeKey]int64)
	runsTotal      = make(map[runKey]int64)
	valuesTotal    = make(map[string]int64)
	retentionRuns  int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type llmKey struct {
	Provider string
	Model    string
	Success  string
}

type scrapeKey struct {
	Strategy string
	Success  string
}

type runKey struct {
	Category string
	Status   string
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordLLMExtract increments LLM extract counters.
func RecordLLMExtract(provider, model string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	llmExtracts[llmKey{Provider: provider, Model: model, Success: boolLabel(success)}]++
}

// RecordScrapeAttempt counts one scraping variant attempt.
func RecordScrapeAttempt(strategy string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	scrapeAttempts[scrapeKey{Strategy: strategy, Success: boolLabel(success)}]++
}

// RecordRun counts a finished run and the non-empty values it extracted.
func RecordRun(category, status string, valuesExtracted int) {
	mu.Lock()
	defer mu.Unlock()

	runsTotal[runKey{Category: category, Status: status}]++
	if valuesExtracted > 0 {
		valuesTotal[category] += int64(valuesExtracted)
	}
}

// RecordRetentionRuns counts runs removed by retention cleanup.
func RecordRetentionRuns(n int64) {
	mu.Lock()
	defer mu.Unlock()

	retentionRuns += n
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP paxth_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE paxth_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "paxth_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP paxth_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE paxth_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP paxth_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE paxth_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "paxth_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "paxth_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP paxth_llm_extract_requests_total Total LLM extract requests\n")
	b.WriteString("# TYPE paxth_llm_extract_requests_total counter\n")

	var llmKeys []llmKey
	for k := range llmExtracts {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		if llmKeys[i].Provider != llmKeys[j].Provider {
			return llmKeys[i].Provider < llmKeys[j].Provider
		}
		if llmKeys[i].Model != llmKeys[j].Model {
			return llmKeys[i].Model < llmKeys[j].Model
		}
		return llmKeys[i].Success < llmKeys[j].Success
	})

	for _, k := range llmKeys {
		fmt.Fprintf(&b, "paxth_llm_extract_requests_total{provider=\"%s\",model=\"%s\",success=\"%s\"} %d\n",
			k.Provider, k.Model, k.Success, llmExtracts[k])
	}

	b.WriteString("# HELP paxth_scrape_attempts_total Scraping variant attempts by outcome\n")
	b.WriteString("# TYPE paxth_scrape_attempts_total counter\n")

	var sKeys []scrapeKey
	for k := range scrapeAttempts {
		sKeys = append(sKeys, k)
	}
	sort.Slice(sKeys, func(i, j int) bool {
		if sKeys[i].Strategy != sKeys[j].Strategy {
			return sKeys[i].Strategy < sKeys[j].Strategy
		}
		return sKeys[i].Success < sKeys[j].Success
	})
	for _, k := range sKeys {
		fmt.Fprintf(&b, "paxth_scrape_attempts_total{strategy=\"%s\",success=\"%s\"} %d\n",
			k.Strategy, k.Success, scrapeAttempts[k])
	}

	b.WriteString("# HELP paxth_runs_total Extraction runs by category and status\n")
	b.WriteString("# TYPE paxth_runs_total counter\n")

	var rKeys []runKey
	for k := range runsTotal {
		rKeys = append(rKeys, k)
	}
	sort.Slice(rKeys, func(i, j int) bool {
		if rKeys[i].Category != rKeys[j].Category {
			return rKeys[i].Category < rKeys[j].Category
		}
		return rKeys[i].Status < rKeys[j].Status
	})
	for _, k := range rKeys {
		fmt.Fprintf(&b, "paxth_runs_total{category=\"%s\",status=\"%s\"} %d\n", k.Category, k.Status, runsTotal[k])
	}

	b.WriteString("# HELP paxth_values_extracted_total Non-empty attribute values extracted\n")
	b.WriteString("# TYPE paxth_values_extracted_total counter\n")

	var categories []string
	for c := range valuesTotal {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Fprintf(&b, "paxth_values_extracted_total{category=\"%s\"} %d\n", c, valuesTotal[c])
	}

	b.WriteString("# HELP paxth_retention_runs_deleted_total Runs deleted by retention cleanup\n")
	b.WriteString("# TYPE paxth_retention_runs_deleted_total counter\n")
	fmt.Fprintf(&b, "paxth_retention_runs_deleted_total %d\n", retentionRuns)

	return b.String()
}
