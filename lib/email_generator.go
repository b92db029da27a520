package lib

import (
	"fmt"
	"math/rand"
	"time"
)

const charset = "abcdefghijklmnopqrstuvwxyz " +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 " +
	",./;'\\ \" []{}<>?:|!@£$%^&*()_+-= " +
	"\r\n\r\n\r\n "

const template = "From: %s\r\n" +
	"To: %s\r\n" +
	"Subject: A little message, just for you\r\n" +
	"Date: %s\r\n" +
	"Message-ID: <%d@localhost/>\r\n" +
	"%s" +
	"Content-Type: text/plain\r\n" +
	"\r\n%s"

var seededRand *rand.Rand = rand.New(
	rand.NewSource(time.Now().UnixMilli()))

func stringWithCharset(length int, charset string) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}

// GenerateEmail builds a plausible raw message. The references parameter
// lists the uids of the messages this one replies to; they end up in a
// References header pointing at the Message-IDs GenerateEmail produces for
// those uids.
func GenerateEmail(from, to string, uid uint32, references ...uint32) []byte {
	refs := ""
	if len(references) > 0 {
		refs = "References:"
		for _, ref := range references {
			refs += fmt.Sprintf(" <%d@localhost/>", ref)
		}
		refs += "\r\n"
	}
	length := seededRand.Intn(3000)
	date := GenerateDateFrom(time.Date(2010, 1, 1, 12, 0, 0, 0, time.Local))
	msg := fmt.Sprintf(template, from, to, date.Format(time.RFC1123Z), uid, refs, stringWithCharset(length, charset))
	return []byte(msg)
}

// GenerateDateFrom picks a random date between from and now.
func GenerateDateFrom(from time.Time) time.Time {
	window := time.Since(from)
	offset := time.Duration(seededRand.Int63n(int64(window)-2) + 1)
	return from.Add(offset)
}

// GenerateFlags picks between 0 and max-1 random IMAP flags.
func GenerateFlags(max int) []string {
	available := []string{"\\Seen", "\\Answered", "\\Flagged", "\\Draft"}
	count := seededRand.Intn(max)
	if count > len(available) {
		count = len(available)
	}
	flags := make([]string, 0, count)
	for _, index := range seededRand.Perm(len(available))[:count] {
		flags = append(flags, available[index])
	}
	return flags
}
