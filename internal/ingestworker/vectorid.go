package ingestworker

import (
	"fmt"

	"github.com/google/uuid"
)

// vectorID builds the deterministic UUIDv5 vector id (spec §4.4 step e,
// §9 design note): idempotent across redeliveries because the same
// (file_name, parent, chunk_index) triple always yields the same id.
func vectorID(fileName string, parentID int64, chunkIndex int) string {
	name := fmt.Sprintf("%s::parent:%d::chunk:%d", fileName, parentID, chunkIndex)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}
