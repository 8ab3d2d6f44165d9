package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/faasmesh/faasmesh/utils"
	"github.com/spf13/cobra"
)

var serverUrl string

var rootCmd = &cobra.Command{
	Use:   "fmesh-cli",
	Short: "Query and control a faasmesh host",
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the host's resources and its view of the mesh",
	Run: func(cmd *cobra.Command, args []string) {
		body := get("/status")
		host := utils.JsonExtractStringOrDefault(body, "host", "?")
		resources, err := utils.JsonExtract(body, "resources")
		if err != nil {
			log.Fatalf("unexpected reply: %s", body)
		}
		cores := utils.JsonExtractIntOrDefault([]byte(resources), "cores", 0)
		inFlight := utils.JsonExtractIntOrDefault([]byte(resources), "functionsInFlight", 0)
		fmt.Printf("Host: %s\nCores: %d\nIn flight: %d\n", host, cores, inFlight)
	},
}

var resultCmd = &cobra.Command{
	Use:   "result <messageId>",
	Short: "Poll the status of a call",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body := get("/result/" + args[0])
		status, err := utils.JsonExtract(body, "status")
		if err != nil {
			log.Fatalf("unexpected reply: %s", body)
		}
		fmt.Println(status)
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph <messageId>",
	Short: "Print the execution graph rooted at a call",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(string(get("/graph/" + args[0])))
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Flush every host in the mesh",
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := http.Post(serverUrl+"/flush", "application/json", nil)
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Fatalf("flush failed: %s", resp.Status)
		}
		fmt.Println("flushed")
	},
}

func get(path string) []byte {
	resp, err := http.Get(serverUrl + path)
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("request failed: %s: %s", resp.Status, body)
	}
	return body
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverUrl, "server", "http://127.0.0.1:1323", "admin API of the target host")
	rootCmd.AddCommand(statusCmd, resultCmd, graphCmd, flushCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
