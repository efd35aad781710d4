package rtshare

import (
	"io"
	"time"
)

// sinkTimeout is the fixed post-mismatch sink-phase duration. A var,
// not a const, so tests can shrink it rather than waiting out the
// real value.
var sinkTimeout = 5 * time.Second

// handshakeConn is the minimal duplex-stream contract the handshake
// engine needs: read, write, and a read deadline so the sink phase can
// be driven off the connection itself rather than a separate timer
// goroutine.
type handshakeConn interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
}

// exchangeSalts runs the concurrent salt exchange of handshake steps
// 2 and 3: our salt is sent while the peer's salt is read, with no
// ordering imposed between them. It returns the peer's Challenge once
// both complete.
func exchangeSalts(conn handshakeConn, psk []byte, mine Challenge) (Challenge, error) {
	type result struct {
		theirs Challenge
		err    error
	}
	readDone := make(chan result, 1)
	go func() {
		theirs, err := ReadChallenge(psk, conn)
		readDone <- result{theirs, err}
	}()

	sendErr := mine.Send(conn)

	res := <-readDone
	if sendErr != nil {
		return Challenge{}, sendErr
	}
	if res.err != nil {
		return Challenge{}, res.err
	}
	return res.theirs, nil
}

// exchangeResponses runs the concurrent response exchange of
// handshake steps 5 and 6, symmetric to exchangeSalts.
func exchangeResponses(conn handshakeConn, mine Response) (Response, error) {
	type result struct {
		theirs Response
		err    error
	}
	readDone := make(chan result, 1)
	go func() {
		theirs, err := ReadResponse(conn)
		readDone <- result{theirs, err}
	}()

	sendErr := mine.Send(conn)

	res := <-readDone
	if sendErr != nil {
		return Response{}, sendErr
	}
	if res.err != nil {
		return Response{}, res.err
	}
	return res.theirs, nil
}

// runHandshake performs the full mutual challenge-response protocol
// over conn using psk, symmetrically from either peer's point of
// view. On ResponseMismatch it enters the sink phase (reads and
// discards until EOF or a 5-second timeout, whichever is first) before
// returning the error, so neither side reveals which one detected the
// mismatch first.
func runHandshake(conn handshakeConn, psk []byte) error {
	myChallenge, err := CreateChallenge(psk)
	if err != nil {
		return err
	}

	theirChallenge, err := exchangeSalts(conn, psk, myChallenge)
	if err != nil {
		return err
	}

	myResponse := theirChallenge.Response()

	theirResponse, err := exchangeResponses(conn, myResponse)
	if err != nil {
		return err
	}

	if checkErr := myChallenge.Response().Check(theirResponse); checkErr != nil {
		if sinkErr := sink(conn); sinkErr != nil {
			return sinkErr
		}
		return checkErr
	}

	return nil
}

// sink reads and discards bytes from conn until end-of-stream or
// sinkTimeout elapses, whichever is first. Both outcomes are
// completion signals, not errors: the caller has already decided to
// surface ResponseMismatch regardless of which one occurs. The only
// error sink can return is a TimerError, when the timeout facility
// backing the sink phase itself (the connection's read deadline)
// fails to arm; in that case the caller can't safely read-and-discard
// with a bound on how long it will block, so the sink phase is
// abandoned and the failure is surfaced instead of ResponseMismatch.
func sink(conn handshakeConn) error {
	if err := conn.SetReadDeadline(time.Now().Add(sinkTimeout)); err != nil {
		return &TimerError{Err: err}
	}
	_, _ = io.Copy(io.Discard, conn)
	return nil
}
