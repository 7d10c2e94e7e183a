package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	minipool "github.com/xumc/miniPool"
)

const (
	objectSize  = 64
	objectCount = 1000000
)

func main() {
	logrus.SetLevel(logrus.InfoLevel)

	pool, err := minipool.New(objectSize, minipool.Config{
		ObjectsPerPage: 1024,
	})
	if err != nil {
		logrus.Fatalf("error when creating pool. %s", err.Error())
	}

	objs := make([][]byte, 0, objectCount)

	//////////////////////////Allocate//////////////////////////////////
	start := time.Now()
	for i := 0; i < objectCount; i++ {
		obj, err := pool.Allocate("")
		if err != nil {
			logrus.Fatalf("allocate error. %s", err.Error())
		}
		objs = append(objs, obj)
	}
	fmt.Printf("allocate cost: %f\n", time.Now().Sub(start).Seconds())

	/////////////////////////Free///////////////////////////////////////
	start = time.Now()
	for _, obj := range objs {
		if err := pool.Free(obj); err != nil {
			logrus.Fatalf("free error. %s", err.Error())
		}
	}
	fmt.Printf("free cost: %f\n", time.Now().Sub(start).Seconds())

	/////////////////////////Reclaim////////////////////////////////////
	start = time.Now()
	freed := pool.FreeEmptyPages()
	fmt.Printf("reclaim cost: %f, pages freed: %d\n", time.Now().Sub(start).Seconds(), freed)

	stats := pool.Stats()
	fmt.Printf("allocations: %d, deallocations: %d, most objects: %d\n",
		stats.Allocations, stats.Deallocations, stats.MostObjects)

	if err := pool.Close(); err != nil {
		logrus.Fatalf("close error. %s", err.Error())
	}
}
