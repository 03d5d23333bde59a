package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	daemonAddr string
	adminToken string
)

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "portalctl drives a running portalboxd daemon over its HTTP API",
	Long:  `portalctl drives a running portalboxd daemon over its HTTP API`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "http://127.0.0.1:8080", "Base URL of the portalboxd API")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", "", "Admin token (printed by portalboxd at startup)")
}

func client() *resty.Client {
	c := resty.New().
		SetBaseURL(daemonAddr).
		SetTimeout(90 * time.Second)
	if adminToken != "" {
		c.SetAuthToken(adminToken)
	}
	return c
}

// getJSON fetches a path and pretty-prints the response, exiting nonzero on
// HTTP or transport errors.
func getJSON(path string) {
	resp, err := client().R().Get(path)
	if err != nil {
		log.Printf("Failed to reach portalboxd: %+v", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func postJSON(path string) {
	resp, err := client().R().Post(path)
	if err != nil {
		log.Printf("Failed to reach portalboxd: %+v", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func printResponse(resp *resty.Response) {
	var pretty json.RawMessage = resp.Body()
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		// Not JSON, dump it as-is.
		fmt.Println(string(resp.Body()))
	} else {
		fmt.Println(string(out))
	}

	if resp.IsError() {
		os.Exit(1)
	}
}
