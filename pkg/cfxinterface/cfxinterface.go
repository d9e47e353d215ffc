// Package cfxinterface exposes the sync core to the host process through C
// entry points. The host calls them from its main thread, so console commands
// run on the frame loop alongside the hooks.
package cfxinterface

/*
#include <stdlib.h>
#include <stdio.h>
#include <string.h>
*/
import "C"
import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/onesync/clonecore/internal/dispatcher"
)

// TimestampCommand is answered without a dispatcher.
const TimestampCommand = ":TIMESTAMP:"

// Lifecycle commands behind OneSyncNetLibraryCreate and OneSyncShutdown.
const (
	StartCommand = ":START:"
	StopCommand  = ":STOP:"
)

// Config defines how calls to this library will be handled
var Config configStruct = configStruct{}

func init() {
	Config.Init()
}

// called by the host to get the version of the core
//
//export OneSyncVersion
func OneSyncVersion(output *C.char, outputsize C.size_t) {
	replyToSyncCall(Config.version, output, outputsize)
}

// called by the host with a console command in the form "name|arg|arg"
//
//export OneSyncCommand
func OneSyncCommand(output *C.char, outputsize C.size_t, input *C.char) {
	replyToSyncCall(Call(C.GoString(input)), output, outputsize)
}

// called by the host once its network library has been created; builds the
// core on the registered engine bindings
//
//export OneSyncNetLibraryCreate
func OneSyncNetLibraryCreate(output *C.char, outputsize C.size_t) {
	replyToSyncCall(Call(StartCommand), output, outputsize)
}

// called by the host before it unloads the library
//
//export OneSyncShutdown
func OneSyncShutdown(output *C.char, outputsize C.size_t) {
	replyToSyncCall(Call(StopCommand), output, outputsize)
}

// Call runs one console command and returns the encoded reply.
func Call(input string) string {
	command, args := splitCommand(input)

	if command == TimestampCommand {
		return formatDispatchResponse(command, getTimestamp(), nil)
	}

	// only console commands; reliable network commands never come from here
	d := Config.dispatcher
	if d == nil || !strings.HasPrefix(command, ":") || !d.HasHandler(command) {
		return formatDispatchResponse(command, nil, fmt.Errorf("no handler registered"))
	}

	result, err := d.Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Timestamp: time.Now(),
	})
	return formatDispatchResponse(command, result, err)
}

func splitCommand(input string) (string, []string) {
	parts := strings.Split(input, "|")
	if len(parts) == 1 {
		return parts[0], nil
	}
	return parts[0], parts[1:]
}

// formatDispatchResponse encodes a dispatcher result as a JSON array:
// ["ok", command], ["ok", command, result] or ["error", command, message].
func formatDispatchResponse(command string, result any, err error) string {
	reply := []any{"ok", command}
	switch {
	case err != nil:
		reply = []any{"error", command, err.Error()}
	case result != nil:
		reply = append(reply, result)
	}

	b, merr := json.Marshal(reply)
	if merr != nil {
		b, _ = json.Marshal([]any{"error", command, fmt.Sprintf("encoding result: %v", merr)})
	}
	return string(b)
}

// replyToSyncCall copies response into the host's buffer, truncating it to
// outputsize including the terminator.
func replyToSyncCall(response string, output *C.char, outputsize C.size_t) {
	if outputsize == 0 {
		return
	}
	result := C.CString(response)
	defer C.free(unsafe.Pointer(result))
	var size = C.strlen(result) + 1
	if size > outputsize {
		size = outputsize
	}
	C.memmove(unsafe.Pointer(output), unsafe.Pointer(result), size)
	*(*C.char)(unsafe.Pointer(uintptr(unsafe.Pointer(output)) + uintptr(size-1))) = 0
}

func getTimestamp() string {
	return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
}
