// Command loadtest drives a running tokcache instance. It serves a fake
// scraper API on fakeProviderAddr; point provider.baseURL at it.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	baseURL          = "http://127.0.0.1:8080"
	fakeProviderAddr = "127.0.0.1:18091"
	numWorkers       = 50
	testDuration     = 10 * time.Second
	numOwners        = 200
	itemsPerRun      = 20
)

var hashtags = []string{"cats", "dogs", "fyp", "cooking", "travel"}

var httpClient = &http.Client{
	Timeout: 40 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      bool
}

type stats struct {
	count     int64
	errors    int64
	statuses  map[int]int64
	latencies []time.Duration
}

var providerRuns atomic.Int64

func main() {
	fmt.Println("=== tokcache Load Test ===")
	fmt.Printf("Workers: %d | Duration: %s | Owners: %d | Hashtags: %d\n\n", numWorkers, testDuration, numOwners, len(hashtags))

	go serveFakeProvider()

	fmt.Print("Waiting for server... ")
	for i := 0; i < 30; i++ {
		resp, err := httpClient.Get(baseURL + "/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			break
		}
		if i == 29 {
			fmt.Println("FAILED: server not responding")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("OK")

	fmt.Println("\n--- Phase 1: Linking accounts (PUT /profile/account) ---")
	for i := 0; i < numOwners; i++ {
		doLink(i)
	}

	// Every owner and hashtag may sync once per window; everything else
	// must be answered by the cooldown gate.
	fmt.Println("\n--- Phase 2: Sync storm (50% POST /refresh, 50% POST /hashtags/search) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		if rng.Float64() < 0.5 {
			return doRefresh(rng)
		}
		return doSearch(rng)
	})
	fmt.Printf("  Provider runs: %d (expected at most %d)\n", providerRuns.Load(), numOwners+len(hashtags))

	fmt.Println("\n--- Phase 3: Read-heavy load (60% GET /videos, 40% GET /hashtags/videos) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		if rng.Float64() < 0.6 {
			return doGetVideos(rng)
		}
		return doGetHashtagVideos(rng)
	})
}

func serveFakeProvider() {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/acts/", func(w http.ResponseWriter, r *http.Request) {
		providerRuns.Add(1)
		var input struct {
			Profiles []string `json:"profiles"`
			Hashtags []string `json:"hashtags"`
		}
		_ = json.NewDecoder(r.Body).Decode(&input)

		prefix := "tag"
		if len(input.Profiles) > 0 {
			prefix = strings.TrimPrefix(input.Profiles[0], "@")
		} else if len(input.Hashtags) > 0 {
			prefix = input.Hashtags[0]
		}

		items := make([]map[string]interface{}, itemsPerRun)
		for i := range items {
			items[i] = map[string]interface{}{
				"id":          fmt.Sprintf("%s-%d", prefix, i),
				"text":        fmt.Sprintf("clip %d #%s", i, prefix),
				"createTime":  time.Now().Add(-time.Duration(i) * time.Hour).Unix(),
				"playCount":   rand.Intn(100000),
				"diggCount":   rand.Intn(1000),
				"webVideoUrl": fmt.Sprintf("https://www.tiktok.com/@%s/video/%d", prefix, i),
				"authorMeta":  map[string]interface{}{"name": prefix, "fans": 10},
			}
		}
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(items)
	})
	if err := http.ListenAndServe(fakeProviderAddr, mux); err != nil {
		fmt.Printf("fake provider: %v\n", err)
	}
}

func owner(i int) string {
	return fmt.Sprintf("owner-%d", i)
}

func send(method, endpoint, ownerID, target string, body interface{}, ok func(int) bool) result {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, baseURL+target, reader)
	req.Header.Set("X-Owner-ID", ownerID)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := httpClient.Do(req)
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, resp.StatusCode, lat, !ok(resp.StatusCode)}
}

func is200(code int) bool { return code == http.StatusOK }

func syncOK(code int) bool {
	return code == http.StatusOK || code == http.StatusTooManyRequests || code == http.StatusForbidden
}

func doLink(i int) {
	r := send(http.MethodPut, "PUT /profile/account", owner(i), "/profile/account",
		map[string]string{"tiktokUsername": fmt.Sprintf("user_%d", i)}, is200)
	if r.err {
		fmt.Printf("  link %s failed: status %d\n", owner(i), r.status)
	}
}

func doRefresh(rng *rand.Rand) result {
	return send(http.MethodPost, "POST /refresh", owner(rng.Intn(numOwners)), "/refresh", nil, syncOK)
}

func doSearch(rng *rand.Rand) result {
	body := map[string]interface{}{"hashtag": hashtags[rng.Intn(len(hashtags))], "resultsPerPage": 21}
	return send(http.MethodPost, "POST /hashtags/search", owner(rng.Intn(numOwners)), "/hashtags/search", body, syncOK)
}

func doGetVideos(rng *rand.Rand) result {
	target := fmt.Sprintf("/videos?limit=20&offset=%d", rng.Intn(2)*20)
	return send(http.MethodGet, "GET /videos", owner(rng.Intn(numOwners)), target, nil, is200)
}

func doGetHashtagVideos(rng *rand.Rand) result {
	target := "/hashtags/videos?term=" + hashtags[rng.Intn(len(hashtags))]
	return send(http.MethodGet, "GET /hashtags/videos", owner(rng.Intn(numOwners)), target, nil, is200)
}

func runPhase(duration time.Duration, workFn func(rng *rand.Rand) result) {
	results := make(chan result, 10000)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
					results <- workFn(rng)
				}
			}
		}(rand.Int63() + int64(i))
	}

	allResults := make(map[string]*stats)
	done := make(chan struct{})
	go func() {
		for r := range results {
			s, ok := allResults[r.endpoint]
			if !ok {
				s = &stats{statuses: make(map[int]int64)}
				allResults[r.endpoint] = s
			}
			s.count++
			s.statuses[r.status]++
			if r.err {
				s.errors++
			}
			s.latencies = append(s.latencies, r.latency)
		}
		close(done)
	}()

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	close(results)
	<-done

	printResults(allResults, duration)
}

func printResults(allResults map[string]*stats, duration time.Duration) {
	var totalOps int64
	var totalErrors int64

	endpoints := make([]string, 0, len(allResults))
	for ep := range allResults {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("\n  %-24s %8s %6s %10s %10s %10s %10s  %s\n",
		"Endpoint", "Reqs", "Errs", "Avg", "P50", "P95", "P99", "Statuses")
	fmt.Println("  " + strings.Repeat("-", 110))

	for _, ep := range endpoints {
		s := allResults[ep]
		totalOps += s.count
		totalErrors += s.errors

		sort.Slice(s.latencies, func(i, j int) bool {
			return s.latencies[i] < s.latencies[j]
		})

		fmt.Printf("  %-24s %8d %6d %10s %10s %10s %10s  %s\n",
			ep, s.count, s.errors,
			fmtDur(avgDuration(s.latencies)),
			fmtDur(percentile(s.latencies, 0.50)),
			fmtDur(percentile(s.latencies, 0.95)),
			fmtDur(percentile(s.latencies, 0.99)),
			fmtStatuses(s.statuses))
	}

	if totalOps == 0 {
		return
	}
	rps := float64(totalOps) / duration.Seconds()
	fmt.Println("  " + strings.Repeat("-", 110))
	fmt.Printf("  Total: %d reqs | Errors: %d (%.1f%%) | RPS: %.0f\n",
		totalOps, totalErrors, float64(totalErrors)/float64(totalOps)*100, rps)
}

func fmtStatuses(m map[int]int64) string {
	codes := make([]int, 0, len(m))
	for c := range m {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%d:%d", c, m[c]))
	}
	return strings.Join(parts, " ")
}

func avgDuration(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	idx := int(float64(len(d)) * p)
	if idx >= len(d) {
		idx = len(d) - 1
	}
	return d[idx]
}

func fmtDur(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}
