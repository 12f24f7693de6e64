package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/abihf/rollcall/config"
	"github.com/abihf/rollcall/protocol"
)

func main() {
	socket := flag.String("socket", config.New().Station.Socket, "Station socket")
	status := flag.String("status", "", "Ask whether this identity is present today instead of marking")
	reload := flag.Bool("reload", false, "Ask the station to reload its model")
	timeout := flag.Duration("timeout", 0, "Session timeout (station default when zero)")
	flag.Parse()

	conn, err := net.Dial("unix", *socket)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	switch {
	case *status != "":
		err = protocol.WriteStatusReq(conn, *status)
	case *reload:
		err = protocol.WriteReloadReq(conn)
	default:
		err = protocol.WriteMarkReq(conn, *timeout)
	}
	if err != nil {
		log.Fatal(err)
	}

	res, err := protocol.ReadRes(conn)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Result", res.Status)
	if res.Status != protocol.StatusSuccess {
		fmt.Println("Error", res.Error)
		os.Exit(1)
	}
	for k, v := range res.Extras {
		fmt.Printf("  %s: %s\n", k, v)
	}
}
