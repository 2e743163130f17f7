package configs

import (
	"fmt"
	"github.com/goccy/go-json"
	"log"
	"strconv"
	"time"
)

func ArbPrintf(hsid uint64, format string, a ...interface{}) {
	if ShowDebugInfo {
		line := time.Now().Format("15:04:05.00") + " <---> " + "hsid" + strconv.FormatUint(hsid, 10) + ":" + format + "\n"
		if !LogToFile {
			fmt.Printf(line, a...)
		} else {
			log.Printf(line, a...)
		}
	}
}

// ClassifierPrintf logs every non-DoNot classifier verdict (§4.1).
func ClassifierPrintf(format string, a ...interface{}) {
	if ShowClassifierInfo {
		line := time.Now().Format("15:04:05.00") + " <---> " + format + "\n"
		if !LogToFile {
			fmt.Printf(line, a...)
		} else {
			log.Printf(line, a...)
		}
	}
}

// StallPrintf logs receive-phase stall warnings (§4.4, §7.2).
func StallPrintf(format string, a ...interface{}) {
	if ShowStallInfo {
		line := time.Now().Format("15:04:05.00") + " <---> " + format + "\n"
		if !LogToFile {
			fmt.Printf(line, a...)
		} else {
			log.Printf(line, a...)
		}
	}
}

func JToString(v interface{}) string {
	byt, _ := json.Marshal(v)
	return string(byt)
}

func JPrint(v interface{}) {
	byt, _ := json.Marshal(v)
	fmt.Println(string(byt))
}

// Assert panics (crashing the process) when an invariant has been violated.
// Per §7.4, invariant violations at decision extraction are fatal: the site
// must crash rather than proceed on an assumption that no longer holds.
func Assert(cond bool, msg string) bool {
	if !cond {
		panic("[ERROR] invariant violated: " + msg)
	}
	return cond
}

func Warn(cond bool, msg string) bool {
	if ShowWarnings && !cond {
		if !LogToFile {
			fmt.Printf("[WARNING] :" + msg + "\n")
		} else {
			log.Printf("[WARNING] :" + msg + "\n")
		}
	}
	return cond
}

func CheckError(err error) {
	if err != nil {
		panic(err.Error())
	}
}
