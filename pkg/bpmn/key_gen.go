package bpmn

import (
	"hash/adler32"
	"os"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var (
	globalIdGenerator     *snowflake.Node
	globalIdGeneratorOnce sync.Once
)

// generateId returns a snowflake id for flow node instances and external tasks.
func (engine *Engine) generateId() string {
	return engine.snowflake.Generate().String()
}

// generateInstanceId returns a random id for correlations and process instances.
func generateInstanceId() string {
	return uuid.NewString()
}

// getGlobalSnowflakeIdGenerator the global ID generator
// constraints: see also CreateSnowflakeIdGenerator
func getGlobalSnowflakeIdGenerator() *snowflake.Node {
	globalIdGeneratorOnce.Do(func() {
		globalIdGenerator = CreateSnowflakeIdGenerator()
	})
	return globalIdGenerator
}

// CreateSnowflakeIdGenerator a new ID generator,
// constraints: creating two new instances within a few microseconds, will create generators with the same seed
func CreateSnowflakeIdGenerator() *snowflake.Node {
	hash32 := adler32.New()
	for _, e := range os.Environ() {
		_, _ = hash32.Write([]byte(e))
	}
	// node ids are limited to 10 bits
	snowflakeNode, err := snowflake.NewNode(int64(hash32.Sum32() % 1024))
	if err != nil {
		panic("can't initialize snowflake ID generator. Message: " + err.Error())
	}
	return snowflakeNode
}
