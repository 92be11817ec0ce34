// Command datalake runs the song-play ETL job: it reads song metadata and
// event logs from S3 or a local directory and writes the songs, artists,
// user, time and songplays tables as partitioned Parquet, optionally
// mirroring them into a SQL warehouse.
package main

import (
	"context"
	"fmt"
	"os"

	// register all backends with the storage factory; the pipeline selects
	// one by warehouse.kind.
	_ "datalake/internal/storage/all"
)

func main() {
	cmd := newRootCmd(os.Getenv)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "datalake: %v\n", err)
		os.Exit(1)
	}
}
