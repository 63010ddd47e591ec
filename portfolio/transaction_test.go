// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio_test

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/jackc/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data/database"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/pgxmockhelper"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

const brokerageExport = `"Activity Date","Process Date","Settle Date","Instrument","Description","Trans Code","Quantity","Price","Amount"
"1/4/2021","1/4/2021","1/6/2021","VFINX","Vanguard 500 Index","Buy","10","$332.13","($3,321.30)"
"1/15/2021","1/15/2021","1/15/2021","VFINX","Cash Div: R/D 2021-01-12","CDIV","","","$12.50"
"1/20/2021","1/20/2021","1/20/2021","","ACH Deposit","ACH","","","$5,000.00"
"","","","","","","","",""
"The data provided is for informational purposes only."
`

var _ = Describe("Transactions", func() {
	Context("when parsing actions", func() {
		DescribeTable("maps names and trans codes",
			func(input string, expected portfolio.Action) {
				Expect(portfolio.ParseAction(input)).To(Equal(expected))
			},
			Entry("buy", "Buy", portfolio.Buy),
			Entry("lower case sell", "sell", portfolio.Sell),
			Entry("cash dividend", "CDIV", portfolio.Dividend),
			Entry("spelled out dividend", "Dividend", portfolio.Dividend),
			Entry("ach", "ACH", portfolio.Transfer),
			Entry("acat in", " ACATI ", portfolio.Transfer),
			Entry("gold fee", "GOLD", portfolio.Other),
			Entry("empty", "", portfolio.Other),
		)
	})

	Context("when constructing a transaction", func() {
		It("derives the sign of the quantity from the action", func() {
			Expect(portfolio.NewTransaction(day(2021, 1, 4), "vfinx", portfolio.Buy, -5, 1, 1).SignedQuantity()).To(Equal(5.0))
			Expect(portfolio.NewTransaction(day(2021, 1, 4), "vfinx", portfolio.Sell, 5, 1, 1).SignedQuantity()).To(Equal(-5.0))
			Expect(portfolio.NewTransaction(day(2021, 1, 4), "vfinx", portfolio.Dividend, 5, 1, 1).SignedQuantity()).To(Equal(0.0))
		})

		It("normalizes the ticker", func() {
			Expect(portfolio.NewTransaction(day(2021, 1, 4), " vfinx ", portfolio.Buy, 5, 1, 1).Ticker).To(Equal("VFINX"))
		})

		It("computes a content based source id", func() {
			a := portfolio.NewTransaction(day(2021, 1, 4), "VFINX", portfolio.Buy, 5, 1, 5)
			b := portfolio.NewTransaction(day(2021, 1, 4), "VFINX", portfolio.Buy, 5, 1, 5)
			c := portfolio.NewTransaction(day(2021, 1, 5), "VFINX", portfolio.Buy, 5, 1, 5)
			Expect(a.SourceID).To(HaveLen(32))
			Expect(a.SourceID).To(Equal(b.SourceID))
			Expect(a.SourceID).ToNot(Equal(c.SourceID))
		})
	})

	Context("when importing a csv file", func() {
		It("reads the generic format", func() {
			trxs, err := portfolio.LoadTransactionsCSV("../testdata/transactions.csv")
			Expect(err).To(BeNil())
			Expect(trxs).To(HaveLen(4))

			Expect(trxs[0].Date).To(Equal(day(2021, 1, 4)))
			Expect(trxs[0].Ticker).To(Equal("VFINX"))
			Expect(trxs[0].Action).To(Equal(portfolio.Buy))
			Expect(trxs[0].Quantity).To(Equal(10.0))
			Expect(trxs[0].Amount).Should(BeNumerically("~", -3321.30))
			Expect(trxs[0].SourceID).To(Equal("trx-1"))

			Expect(trxs[2].Action).To(Equal(portfolio.Transfer))
			Expect(trxs[2].Ticker).To(Equal(""))
			Expect(trxs[3].Ticker).To(Equal("PRIDX"))
		})

		It("reads a brokerage activity export", func() {
			trxs, err := portfolio.ReadTransactionsCSV(strings.NewReader(brokerageExport))
			Expect(err).To(BeNil())
			Expect(trxs).To(HaveLen(4))

			Expect(trxs[0].Date).To(Equal(day(2021, 1, 4)))
			Expect(trxs[0].Action).To(Equal(portfolio.Buy))
			Expect(trxs[0].Quantity).To(Equal(10.0))
			Expect(trxs[0].Price).Should(BeNumerically("~", 332.13))
			Expect(trxs[0].Amount).Should(BeNumerically("~", -3321.30))

			Expect(trxs[1].Action).To(Equal(portfolio.Dividend))
			Expect(trxs[1].Quantity).To(Equal(0.0))
			Expect(trxs[1].Amount).Should(BeNumerically("~", 12.50))

			Expect(trxs[2].Action).To(Equal(portfolio.Transfer))
			Expect(trxs[2].Amount).Should(BeNumerically("~", 5000.0))

			// the trailing disclaimer cannot be dated
			Expect(trxs[3].Date.IsZero()).To(BeTrue())

			ledger := portfolio.NewLedger(trxs)
			Expect(ledger.Len()).To(Equal(3))
			Expect(ledger.Warnings()).To(HaveLen(1))
			Expect(ledger.Warnings()[0].Index).To(Equal(3))
			Expect(ledger.Warnings()[0].Reason).To(Equal("missing date"))
		})

		It("keeps rows with an unparseable quantity for the ledger to reject", func() {
			trxs, err := portfolio.ReadTransactionsCSV(strings.NewReader("date,ticker,action,quantity\n2021-01-04,VFINX,Buy,ten\n2021-01-05,VFINX,Buy,2\n"))
			Expect(err).To(BeNil())
			Expect(trxs).To(HaveLen(2))
			Expect(math.IsNaN(trxs[0].Quantity)).To(BeTrue())

			ledger := portfolio.NewLedger(trxs)
			Expect(ledger.Warnings()).To(HaveLen(1))
			Expect(ledger.Warnings()[0].Reason).To(Equal("non-finite quantity"))
			Expect(ledger.HoldingsAt(day(2021, 1, 5))).To(Equal(portfolio.Holdings{"VFINX": 2}))
		})

		It("rejects an unknown header", func() {
			_, err := portfolio.ReadTransactionsCSV(strings.NewReader("foo,bar\n1,2\n"))
			Expect(errors.Is(err, portfolio.ErrUnknownHeader)).To(BeTrue())
		})

		It("errors when there are no rows", func() {
			_, err := portfolio.ReadTransactionsCSV(strings.NewReader(""))
			Expect(errors.Is(err, portfolio.ErrNoTransactions)).To(BeTrue())

			_, err = portfolio.ReadTransactionsCSV(strings.NewReader("date,ticker,action,quantity\n"))
			Expect(errors.Is(err, portfolio.ErrNoTransactions)).To(BeTrue())
		})
	})

	Context("when loading from the database", func() {
		var (
			dbPool pgxmock.PgxConnIface
			ctx    context.Context
		)

		BeforeEach(func() {
			var err error
			dbPool, err = pgxmock.NewConn()
			Expect(err).To(BeNil())
			database.SetPool(dbPool)
			ctx = context.Background()
		})

		AfterEach(func() {
			Expect(dbPool.ExpectationsWereMet()).To(Succeed())
		})

		It("reads the transaction log of an account", func() {
			pgxmockhelper.MockTransactionsQuery(dbPool, "../testdata/transactions.csv", "acct-1")

			trxs, err := portfolio.LoadTransactionsFromDB(ctx, "acct-1")
			Expect(err).To(BeNil())
			Expect(trxs).To(HaveLen(4))
			Expect(trxs[1].Action).To(Equal(portfolio.Sell))
			Expect(trxs[1].SourceID).To(Equal("trx-2"))
			Expect(database.OpenTransactions()).To(Equal(0))

			ledger := portfolio.NewLedger(trxs)
			Expect(ledger.HoldingsAt(day(2021, 1, 8))).To(Equal(portfolio.Holdings{"VFINX": 6, "PRIDX": 20}))
		})

		It("rolls back when the query fails", func() {
			queryErr := errors.New("relation transactions does not exist")
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT event_date, .* FROM transactions").WillReturnError(queryErr)
			dbPool.ExpectRollback()

			_, err := portfolio.LoadTransactionsFromDB(ctx, "acct-1")
			Expect(errors.Is(err, queryErr)).To(BeTrue())
			Expect(database.OpenTransactions()).To(Equal(0))
		})

		It("passes postgres errors through", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("SELECT event_date, .* FROM transactions").WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
			dbPool.ExpectRollback()

			_, err := portfolio.LoadTransactionsFromDB(ctx, "acct-1")
			var pgErr *pgconn.PgError
			Expect(errors.As(err, &pgErr)).To(BeTrue())
			Expect(pgErr.Code).To(Equal("42P01"))
		})
	})
})
