// Package transports registers every built-in transport with the default
// registry. Binaries import it for its side effects.
package transports

import (
	_ "github.com/drblury/quoteflow/transport/aws"
	_ "github.com/drblury/quoteflow/transport/channel"
	_ "github.com/drblury/quoteflow/transport/http"
	_ "github.com/drblury/quoteflow/transport/jetstream"
	_ "github.com/drblury/quoteflow/transport/kafka"
	_ "github.com/drblury/quoteflow/transport/nats"
	_ "github.com/drblury/quoteflow/transport/rabbitmq"
)
