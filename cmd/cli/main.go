package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

type scenario struct {
	Name        string
	Description string
}

type model struct {
	scenarios []scenario
	selected  int
	status    string
	detail    string
	busy      bool
}

func initialModel() model {
	return model{
		scenarios: []scenario{
			{"seed", "Seed stock for sku-1 (100 units)"},
			{"success", "Checkout that should confirm"},
			{"nostock", "Checkout exceeding available stock"},
			{"replay", "Send the same idempotency key twice"},
			{"bench", "Hammer /checkout for 5s"},
		},
		status: "Ready",
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selected > 0 {
				m.selected--
			}
		case "down":
			if m.selected < len(m.scenarios)-1 {
				m.selected++
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Running..."
			return m, runScenarioCmd(m.scenarios[m.selected].Name)
		}
	case scenarioResult:
		m.busy = false
		m.status = msg.status
		m.detail = msg.detail
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "order-saga CLI")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Scenarios:")
	for i, scn := range m.scenarios {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %s - %s\n", marker, scn.Name, scn.Description)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	if m.detail != "" {
		fmt.Fprintf(b, "Detail: %s\n", m.detail)
	}
	fmt.Fprintln(b, "\nControls: up/down select, enter to run, q to quit")
	return b.String()
}

type scenarioResult struct {
	status string
	detail string
}

func runScenarioCmd(scn string) tea.Cmd {
	return func() tea.Msg {
		baseURL := getenv("SAGA_BASE_URL", "http://localhost:8080")
		switch scn {
		case "seed":
			body, err := post(baseURL, "/stock", "", map[string]any{
				"product_id": "sku-1", "location": "main", "current_stock": 100,
			})
			if err != nil {
				return scenarioResult{status: fmt.Sprintf("Seed failed: %v", err)}
			}
			return scenarioResult{status: "Stock seeded", detail: body}
		case "nostock":
			body, err := checkout(baseURL, uuid.NewString(), 10000)
			if err != nil {
				return scenarioResult{status: "Checkout rejected as expected", detail: err.Error()}
			}
			return scenarioResult{status: "Checkout unexpectedly accepted", detail: body}
		case "replay":
			key := uuid.NewString()
			first, err := checkout(baseURL, key, 1)
			if err != nil {
				return scenarioResult{status: fmt.Sprintf("First submission failed: %v", err)}
			}
			second, err := checkout(baseURL, key, 1)
			if err != nil {
				return scenarioResult{status: fmt.Sprintf("Replay failed: %v", err)}
			}
			return scenarioResult{
				status: "Replay done, responses should name the same order",
				detail: fmt.Sprintf("first=%s second=%s", first, second),
			}
		case "bench":
			return scenarioResult{status: "Benchmark finished", detail: runBenchmark(baseURL)}
		default:
			body, err := checkout(baseURL, uuid.NewString(), 1)
			if err != nil {
				return scenarioResult{status: fmt.Sprintf("Checkout failed: %v", err)}
			}
			return scenarioResult{status: "Checkout OK", detail: body}
		}
	}
}

func checkout(baseURL, idemKey string, qty int) (string, error) {
	return post(baseURL, "/checkout", idemKey, map[string]any{
		"user_id":      "user-1",
		"currency":     "USD",
		"total_amount": 1200 * qty,
		"items": []map[string]any{
			{"product_id": "sku-1", "quantity": qty, "unit_price": 1200},
		},
	})
}

func post(baseURL, path, idemKey string, payload any) (string, error) {
	data, _ := json.Marshal(payload)
	ctx, cancel := context.WithTimeout(context.Background(), 65*time.Second)
	defer cancel()
	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return strings.TrimSpace(string(body)), nil
}

func runBenchmark(baseURL string) string {
	duration := 5 * time.Second
	vus := 5
	var mu sync.Mutex
	var total time.Duration
	var count int
	var failures int
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < vus; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
					start := time.Now()
					_, err := checkout(baseURL, uuid.NewString(), 1)
					mu.Lock()
					if err != nil {
						failures++
					} else {
						count++
						total += time.Since(start)
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	avg := time.Duration(0)
	if count > 0 {
		avg = total / time.Duration(count)
	}
	throughput := float64(count) / duration.Seconds()
	return fmt.Sprintf("count=%d failures=%d avg=%s throughput=%.2f orders/s", count, failures, avg, throughput)
}

func main() {
	runCmd := flag.String("run", "", "run scenario: seed|success|nostock|replay|bench")
	flag.Parse()

	if *runCmd != "" {
		res := runScenarioCmd(*runCmd)().(scenarioResult)
		fmt.Println(res.status)
		if res.detail != "" {
			fmt.Println(res.detail)
		}
		return
	}

	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
