//go:build e2e

package e2e

import (
	"context"
	"log"
	"os"
	"testing"
)

var testCtx *TestContext

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()
	testCtx = &TestContext{}

	log.Println("Starting Postgres container...")
	pg, connString, err := setupPostgresE(ctx)
	if err != nil {
		log.Printf("Failed to start postgres: %v", err)
		return 1
	}
	defer func() {
		if err := pg.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate postgres container: %v", err)
		}
	}()
	testCtx.ConnString = connString

	log.Println("Starting anvil container...")
	anvil, rpcURL, err := setupAnvilE(ctx)
	if err != nil {
		log.Printf("Failed to start anvil: %v", err)
		return 1
	}
	defer func() {
		if err := anvil.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate anvil container: %v", err)
		}
	}()
	testCtx.RPCURL = rpcURL

	log.Println("Building Foundry project...")
	testCtx.ProjectDir, err = buildFoundryProjectE("testdata/project")
	if err != nil {
		log.Printf("Failed to build Foundry project: %v", err)
		return 1
	}
	defer os.RemoveAll(testCtx.ProjectDir)

	testCtx.Explorer = newFakeExplorer()
	defer testCtx.Explorer.Close()

	testCtx.Config = testConfig(connString, rpcURL, testCtx.Explorer.URL, testCtx.ProjectDir)
	testCtx.TestServer, testCtx.Store, err = startServerE(testCtx.Config)
	if err != nil {
		log.Printf("Failed to start server: %v", err)
		return 1
	}
	defer testCtx.Store.Close()
	defer testCtx.TestServer.Close()
	log.Println("Test server started at:", testCtx.TestServer.URL)

	return m.Run()
}
