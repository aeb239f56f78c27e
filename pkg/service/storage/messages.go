package storage

import (
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/service"
)

// FileReadRequest asks a storage service to stream a file (or a prefix of
// it) to the requester.
type FileReadRequest struct {
	kernel.Payload
	ReplyPort *kernel.Commport
	File      *job.DataFile
	Location  *job.FileLocation
	NumBytes  float64 // 0 means the whole file
}

// FileReadAnswer carries the outcome of a read; its payload size is the
// number of bytes streamed, so the network cost of the data rides on it.
type FileReadAnswer struct {
	kernel.Payload
	Success bool
	Cause   error
}

// FileWriteRequest asks a storage service to store a file. The request
// payload carries the file bytes.
type FileWriteRequest struct {
	kernel.Payload
	ReplyPort *kernel.Commport
	File      *job.DataFile
	Location  *job.FileLocation
}

// FileWriteAnswer carries the outcome of a write.
type FileWriteAnswer struct {
	kernel.Payload
	Success bool
	Cause   error
}

// FileCopyRequest asks the destination service to pull a file from the
// source location.
type FileCopyRequest struct {
	kernel.Payload
	ReplyPort   *kernel.Commport
	File        *job.DataFile
	Source      *job.FileLocation
	Destination *job.FileLocation
}

// FileCopyAnswer carries the outcome of a copy.
type FileCopyAnswer struct {
	kernel.Payload
	Success bool
	Cause   error
}

// FileDeleteRequest asks a storage service to delete a file.
type FileDeleteRequest struct {
	kernel.Payload
	ReplyPort *kernel.Commport
	File      *job.DataFile
	Location  *job.FileLocation
}

// FileDeleteAnswer carries the outcome of a delete.
type FileDeleteAnswer struct {
	kernel.Payload
	Success bool
	Cause   error
}

func controlPayload() kernel.Payload {
	return kernel.Payload{Bytes: service.DefaultControlMessageSize}
}
